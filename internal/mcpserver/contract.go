package mcpserver

import "strings"

// SyntaxURI is the resource URI of the variable syntax guide.
const SyntaxURI = "livevars://syntax"

const syntaxGuide = `# Live Variable Syntax

Documents reference front-matter values with {{path}}. References are
replaced with the current value when a document is rendered; a reference
that does not resolve is left as written.

## Paths

- ` + "`{{title}}`" + ` reads the key ` + "`title`" + ` from the current document.
- ` + "`{{meta.owner}}`" + ` reads a nested key. Dots separate levels.
- ` + "`{{tags.0}}`" + ` reads the first item of a list.
- ` + "`{{notes/team.md/status}}`" + ` reads ` + "`status`" + ` from another document.
  The part before the last document name is its path inside the vault.

## Writing values

- ` + "`set_variable`" + ` writes into the front matter of the target document.
  A local path targets the current document; a global path names its own.
- At most one dot is allowed in the written key: ` + "`parent.child`" + `.
- Values are parsed like YAML scalars: ` + "`42`" + `, ` + "`true`" + `, ` + "`null`" + ` and
  plain text. Quote text that should stay a string, e.g. ` + "`\"42\"`" + `.
- A document without front matter gets a new block at the top.

## Example

` + "```" + `markdown
---
title: Release notes
meta:
  owner: alice
---
# {{title}}

Owned by {{meta.owner}}, status {{notes/team.md/status}}.
` + "```" + `
`

// SyntaxGuide returns the syntax guide with references written using the
// given delimiters.
func SyntaxGuide(open, close string) string {
	if open == "{{" && close == "}}" {
		return syntaxGuide
	}
	return strings.NewReplacer("{{", open, "}}", close).Replace(syntaxGuide)
}
