package course

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Modules []Module `yaml:"modules"`
}

// Parse разбирает YAML-описание каталога. Неизвестные поля считаются ошибкой,
// чтобы опечатки в данных курса не проходили молча.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return NewCatalog(file.Modules)
}

// LoadFile читает каталог из файла.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default возвращает встроенный каталог курса.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault - как Default, но паникует. Только для тестов и main.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}
