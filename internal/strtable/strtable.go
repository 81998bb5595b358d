package strtable

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const DefaultLanguage = "enUS"

var bom = []byte{0xEF, 0xBB, 0xBF}

var ErrNotTable = errors.New("string table must be a JSON array")

// Document is a JSON string table: an array of entries such as
//
//	{"id": 2023, "Key": "r01", "enUS": "El Rune", "deDE": "El-Rune"}
//
// Edits are made on the raw JSON so untouched entries keep their formatting.
type Document struct {
	raw []byte
	bom bool
}

func Parse(data []byte) (*Document, error) {
	d := &Document{}
	if bytes.HasPrefix(data, bom) {
		d.bom = true
		data = data[len(bom):]
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid json")
	}
	if !gjson.ParseBytes(data).IsArray() {
		return nil, ErrNotTable
	}
	d.raw = append([]byte(nil), data...)
	return d, nil
}

func ReadFile(name string) (*Document, error) {
	data, err := os.ReadFile(filepath.Clean(name))
	if err != nil {
		return nil, err
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}

func (d *Document) WriteFile(name string) error {
	if err := os.MkdirAll(filepath.Dir(name), 0750); err != nil {
		return err
	}
	return os.WriteFile(name, d.Bytes(), 0600)
}

// Bytes returns the document, with its byte order mark if it was read with one.
func (d *Document) Bytes() []byte {
	if d.bom {
		return append(append([]byte(nil), bom...), d.raw...)
	}
	return append([]byte(nil), d.raw...)
}

// JSON returns the document without a byte order mark.
func (d *Document) JSON() []byte {
	return d.raw
}

func (d *Document) Len() int {
	return int(gjson.GetBytes(d.raw, "#").Int())
}

// indexes returns the array positions of entries whose Key is key.
func (d *Document) indexes(key string) []int {
	var found []int
	i := 0
	gjson.ParseBytes(d.raw).ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("Key").String() == key {
			found = append(found, i)
		}
		i++
		return true
	})
	return found
}

// Lookup returns the text of key in lang.
func (d *Document) Lookup(key, lang string) (string, bool) {
	for _, i := range d.indexes(key) {
		v := gjson.GetBytes(d.raw, fmt.Sprintf("%d.%s", i, lang))
		if v.Exists() {
			return v.String(), true
		}
	}
	return "", false
}

// Rename sets the text of every entry named key. With no langs only
// DefaultLanguage is changed. It returns the number of entries found.
func (d *Document) Rename(key, text string, langs ...string) (int, error) {
	if len(langs) == 0 {
		langs = []string{DefaultLanguage}
	}
	found := d.indexes(key)
	for _, i := range found {
		for _, lang := range langs {
			raw, err := sjson.SetBytes(d.raw, fmt.Sprintf("%d.%s", i, lang), text)
			if err != nil {
				return 0, fmt.Errorf("rename %s: %w", key, err)
			}
			d.raw = raw
		}
	}
	return len(found), nil
}

// Recolor applies c to every language of the entries named key.
func (d *Document) Recolor(key string, c Color) (int, error) {
	found := d.indexes(key)
	for _, i := range found {
		entry := gjson.GetBytes(d.raw, fmt.Sprintf("%d", i))
		var langs []string
		texts := map[string]string{}
		entry.ForEach(func(k, v gjson.Result) bool {
			if k.String() != "Key" && k.String() != "id" && v.Type == gjson.String {
				langs = append(langs, k.String())
				texts[k.String()] = v.String()
			}
			return true
		})
		for _, lang := range langs {
			raw, err := sjson.SetBytes(d.raw, fmt.Sprintf("%d.%s", i, lang), c.Apply(texts[lang]))
			if err != nil {
				return 0, fmt.Errorf("recolor %s: %w", key, err)
			}
			d.raw = raw
		}
	}
	return len(found), nil
}
