// Package render decodes the chart and table payloads attached to
// analysis replies into plain rows the text presenters can lay out.
package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Point is one chart entry.
type Point struct {
	Name  string
	Value float64
}

// Chart decodes chartData ([{"name": ..., "value": ...}]). Entries without
// a numeric value are skipped.
func Chart(raw json.RawMessage) []Point {
	if len(raw) == 0 {
		return nil
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	points := make([]Point, 0, len(items))
	for _, it := range items {
		v, ok := number(it["value"])
		if !ok {
			continue
		}
		points = append(points, Point{Name: cell(it["name"]), Value: v})
	}
	return points
}

// Table decodes tableData ([{"column": "value"}]) into headers and rows.
// Headers follow first appearance order across rows.
func Table(raw json.RawMessage) (headers []string, rows [][]string) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	decoded := make([]map[string]any, 0, len(items))
	for _, item := range items {
		keys, values, err := orderedObject(item)
		if err != nil {
			continue
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
		decoded = append(decoded, values)
	}
	if len(headers) == 0 {
		return nil, nil
	}

	for _, values := range decoded {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = cell(values[h])
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// Bar renders a proportional bar of at most width cells for v relative
// to top.
func Bar(v, top float64, width int) string {
	if top <= 0 || v <= 0 || width <= 0 {
		return ""
	}
	n := int(v / top * float64(width))
	if n < 1 {
		n = 1
	}
	if n > width {
		n = width
	}
	return strings.Repeat("█", n)
}

// MaxValue returns the largest value in points.
func MaxValue(points []Point) float64 {
	var top float64
	for _, p := range points {
		if p.Value > top {
			top = p.Value
		}
	}
	return top
}

// orderedObject decodes a JSON object keeping key order.
func orderedObject(raw json.RawMessage) ([]string, map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("render: expected object")
	}
	var keys []string
	values := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = v
	}
	if len(keys) == 0 {
		return nil, nil, fmt.Errorf("render: empty object")
	}
	return keys, values, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + cell(x[k])
		}
		return strings.Join(parts, " ")
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
