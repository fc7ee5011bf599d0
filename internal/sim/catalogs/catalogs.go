package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ModelExt is the file extension ScanDir treats as a model asset.
const ModelExt = ".glb"

// Catalog lists the model identifiers available per placement category
// ("trees", "generators", ...). Identifiers are opaque to the simulation; the
// client resolves them to assets.
type Catalog struct {
	byCategory map[string][]string
	Digest     string
}

type modelsFile struct {
	Categories map[string][]string `json:"categories"`
}

// Load reads <configDir>/models.json.
func Load(configDir string) (*Catalog, error) {
	path := filepath.Join(configDir, "models.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf modelsFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("models.json: %w", err)
	}
	for cat, ids := range mf.Categories {
		if strings.TrimSpace(cat) == "" {
			return nil, fmt.Errorf("models.json: empty category name")
		}
		for _, id := range ids {
			if strings.TrimSpace(id) == "" {
				return nil, fmt.Errorf("models.json: empty model id in %q", cat)
			}
		}
	}
	return New(mf.Categories), nil
}

// ScanDir builds a catalog from an asset tree laid out as
// <root>/<category>/<model>.glb. Identifiers are slash-separated paths relative
// to root. Nested directories below a category are not descended into.
func ScanDir(root string) (*Catalog, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	cats := map[string][]string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cat := e.Name()
		files, err := os.ReadDir(filepath.Join(root, cat))
		if err != nil {
			return nil, err
		}
		ids := []string{}
		for _, f := range files {
			if f.Type()&fs.ModeType != 0 {
				continue
			}
			if strings.EqualFold(filepath.Ext(f.Name()), ModelExt) {
				ids = append(ids, cat+"/"+f.Name())
			}
		}
		cats[cat] = ids
	}
	return New(cats), nil
}

// New copies and sorts the given categories so model selection from a seeded
// RNG is independent of source ordering.
func New(categories map[string][]string) *Catalog {
	c := &Catalog{byCategory: make(map[string][]string, len(categories))}
	for cat, ids := range categories {
		cp := append([]string(nil), ids...)
		sort.Strings(cp)
		c.byCategory[cat] = dedupeSorted(cp)
	}
	canon, _ := json.Marshal(c.byCategory) // map keys are emitted sorted
	sum := sha256.Sum256(canon)
	c.Digest = hex.EncodeToString(sum[:])
	return c
}

// Models returns the sorted identifiers for category. An unknown category is
// the same as an empty one.
func (c *Catalog) Models(category string) []string {
	if c == nil {
		return nil
	}
	return c.byCategory[category]
}

func (c *Catalog) Categories() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.byCategory))
	for k := range c.byCategory {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupeSorted(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
