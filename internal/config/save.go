package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveAllowedDirectories updates worker.allowed_directories in the config
// file. This preserves comments and formatting in other sections by using
// yaml.Node.
func SaveAllowedDirectories(configPath string, dirs []string) error {
	// Read existing file content
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	dirsNode := buildDirsNode(dirs)

	if doc.Kind == 0 {
		// Empty or new file - create document structure
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: "worker"},
						{
							Kind: yaml.MappingNode,
							Content: []*yaml.Node{
								{Kind: yaml.ScalarNode, Value: "allowed_directories"},
								dirsNode,
							},
						},
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind == yaml.MappingNode {
			workerNode := findOrAppendMapping(root, "worker")
			setMappingKey(workerNode, "allowed_directories", dirsNode)
		}
	}

	// Marshal back to YAML
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename)
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".strand-config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// AddAllowedDirectory appends a directory to the allowlist and saves.
// The path must be absolute; duplicates are a no-op.
func AddAllowedDirectory(configPath, dir string, existing []string) error {
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("allowed directory must be an absolute path, got %q", dir)
	}

	cleaned := filepath.Clean(dir)
	for _, d := range existing {
		if filepath.Clean(d) == cleaned {
			return nil
		}
	}

	updated := make([]string, 0, len(existing)+1)
	updated = append(updated, existing...)
	updated = append(updated, cleaned)

	return SaveAllowedDirectories(configPath, updated)
}

// RemoveAllowedDirectory drops a directory from the allowlist and saves.
// Removing a path that is not present is a no-op.
func RemoveAllowedDirectory(configPath, dir string, existing []string) error {
	cleaned := filepath.Clean(dir)

	updated := make([]string, 0, len(existing))
	found := false
	for _, d := range existing {
		if filepath.Clean(d) == cleaned {
			found = true
			continue
		}
		updated = append(updated, d)
	}
	if !found {
		return nil
	}

	return SaveAllowedDirectories(configPath, updated)
}

// buildDirsNode creates a yaml.Node representing the allowlist array.
func buildDirsNode(dirs []string) *yaml.Node {
	node := &yaml.Node{
		Kind:    yaml.SequenceNode,
		Content: make([]*yaml.Node, 0, len(dirs)),
	}
	for _, dir := range dirs {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: dir})
	}
	return node
}

// findOrAppendMapping returns the mapping node under key, creating an empty
// mapping at the end of root when the key is absent.
func findOrAppendMapping(root *yaml.Node, key string) *yaml.Node {
	for i := 0; i < len(root.Content)-1; i += 2 {
		if root.Content[i].Value == key {
			if root.Content[i+1].Kind != yaml.MappingNode {
				root.Content[i+1] = &yaml.Node{Kind: yaml.MappingNode}
			}
			return root.Content[i+1]
		}
	}

	mapping := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		mapping,
	)
	return mapping
}

// setMappingKey replaces the value under key, or appends the pair when the
// key is absent.
func setMappingKey(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		value,
	)
}
