package steamcfg

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const additionalAppsKey = "AdditionalApps"

// AddAdditionalApp appends appID to the SLSsteam AdditionalApps list with the
// title name as a comment. Existing comments and keys are preserved. The bool
// reports whether the content changed.
func AddAdditionalApp(content []byte, appID, name string) ([]byte, bool, error) {
	doc, err := parseYAML(content)
	if err != nil {
		return nil, false, err
	}
	apps := additionalApps(doc, true)
	if indexOfApp(apps, appID) >= 0 {
		return content, false, nil
	}
	item := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: appID}
	if name = strings.TrimSpace(name); name != "" {
		item.HeadComment = "# " + name
	}
	apps.Content = append(apps.Content, item)
	out, err := encodeYAML(doc)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// RemoveAdditionalApp drops appID from AdditionalApps. Numeric and quoted
// entries both match.
func RemoveAdditionalApp(content []byte, appID string) ([]byte, bool, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return content, false, nil
	}
	doc, err := parseYAML(content)
	if err != nil {
		return nil, false, err
	}
	apps := additionalApps(doc, false)
	idx := indexOfApp(apps, appID)
	if idx < 0 {
		return content, false, nil
	}
	apps.Content = append(apps.Content[:idx], apps.Content[idx+1:]...)
	out, err := encodeYAML(doc)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// AdditionalApps lists the app ids currently in the list.
func AdditionalApps(content []byte) ([]string, error) {
	doc, err := parseYAML(content)
	if err != nil {
		return nil, err
	}
	apps := additionalApps(doc, false)
	if apps == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(apps.Content))
	for _, item := range apps.Content {
		if item.Kind == yaml.ScalarNode {
			ids = append(ids, item.Value)
		}
	}
	return ids, nil
}

func parseYAML(content []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if len(bytes.TrimSpace(content)) > 0 {
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("parse SLSsteam config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse SLSsteam config: top level is not a mapping")
	}
	return &doc, nil
}

// additionalApps finds the AdditionalApps sequence, creating it when create is
// set. A null value (bare "AdditionalApps:") is turned into an empty list.
func additionalApps(doc *yaml.Node, create bool) *yaml.Node {
	mapping := doc.Content[0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != additionalAppsKey {
			continue
		}
		value := mapping.Content[i+1]
		if value.Kind != yaml.SequenceNode {
			if !create {
				return nil
			}
			value.Kind = yaml.SequenceNode
			value.Tag = "!!seq"
			value.Value = ""
			value.Style = 0
		}
		return value
	}
	if !create {
		return nil
	}
	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: additionalAppsKey}
	value := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	mapping.Content = append(mapping.Content, key, value)
	return value
}

func indexOfApp(apps *yaml.Node, appID string) int {
	if apps == nil {
		return -1
	}
	for i, item := range apps.Content {
		if item.Kind == yaml.ScalarNode && strings.TrimSpace(item.Value) == appID {
			return i
		}
	}
	return -1
}

func encodeYAML(doc *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode SLSsteam config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode SLSsteam config: %w", err)
	}
	return buf.Bytes(), nil
}
