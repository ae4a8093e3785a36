package index

import (
	"log/slog"

	"github.com/starford/livevars/internal/frontmatter"
	"github.com/starford/livevars/internal/storage"
	"github.com/starford/livevars/internal/value"
)

// Sync walks the vault and brings the catalog up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the catalog
func Sync(db Catalog, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		row := DocumentRow{Path: m.Path, Checksum: m.Checksum, UpdatedAt: m.UpdatedAt}
		if err := db.UpsertDocument(row, Flatten(frontmatter.Parse(data))); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// Flatten turns front matter into catalog rows, one per addressable
// dotted path, in pre-order.
func Flatten(m *value.Map) []PropertyRow {
	var out []PropertyRow
	value.Walk(value.Object(m), "", ".", func(key string, item value.Value) {
		js, err := item.MarshalJSON()
		if err != nil {
			js = []byte("null")
		}
		out = append(out, PropertyRow{
			Key:     key,
			Kind:    item.Kind().String(),
			Display: value.Display(item),
			JSON:    string(js),
		})
	})
	return out
}
