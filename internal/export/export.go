// Package export renders scan reports for humans and machines. Reports can be
// written as indented JSON, YAML, a flattened CSV row, flattened key=value
// text or an aligned table.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/scanning"
)

// Format identifies an output format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
	FormatText  Format = "text"
	FormatTable Format = "table"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatCSV, FormatText}

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	name := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range Formats {
		if f == name {
			return f, nil
		}
	}
	return "", errors.NewConfigFieldError(errors.CodeValidation,
		fmt.Sprintf("unsupported export format (want one of %s)", formatList()), "format", s)
}

func formatList() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Field is one flattened key/value pair.
type Field struct {
	Key   string
	Value string
}

// Export writes report to w in the given format.
func Export(w io.Writer, report *scanning.ScanReport, format Format) error {
	format, err := ParseFormat(string(format))
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return writeCSV(w, report)
	case FormatText:
		return writeText(w, report)
	default:
		return writeTable(w, report)
	}
}

// Flatten converts v into dotted key/value pairs sorted by key. Nested objects
// contribute "parent.child" keys, list items "key[i]" and null values empty
// strings. Field names follow the JSON encoding of v.
func Flatten(v any) ([]Field, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}

	var fields []Field
	flattenValue("", tree, &fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields, nil
}

func flattenValue(key string, v any, fields *[]Field) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 && key != "" {
			*fields = append(*fields, Field{Key: key})
			return
		}
		for k, child := range val {
			flattenValue(joinKey(key, k), child, fields)
		}
	case []any:
		if len(val) == 0 {
			*fields = append(*fields, Field{Key: key})
			return
		}
		for i, child := range val {
			flattenValue(fmt.Sprintf("%s[%d]", key, i), child, fields)
		}
	case nil:
		*fields = append(*fields, Field{Key: key})
	case string:
		*fields = append(*fields, Field{Key: key, Value: val})
	case bool:
		*fields = append(*fields, Field{Key: key, Value: strconv.FormatBool(val)})
	case json.Number:
		*fields = append(*fields, Field{Key: key, Value: val.String()})
	default:
		*fields = append(*fields, Field{Key: key, Value: fmt.Sprint(val)})
	}
}

func joinKey(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func writeCSV(w io.Writer, report *scanning.ScanReport) error {
	fields, err := Flatten(report)
	if err != nil {
		return err
	}

	header := make([]string, len(fields))
	row := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Key
		row[i] = f.Value
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeText(w io.Writer, report *scanning.ScanReport) error {
	fields, err := Flatten(report)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%s=%s\n", f.Key, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(w io.Writer, report *scanning.ScanReport) error {
	if _, err := fmt.Fprintf(w, "Scan %s of %s (%s)\n\n", report.ScanID, report.URL,
		report.Duration.Round(time.Millisecond)); err != nil {
		return err
	}

	overview := tablewriter.NewWriter(w)
	overview.Header("Section", "Field", "Value")
	for _, row := range overviewRows(report) {
		_ = overview.Append(row)
	}
	if err := overview.Render(); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	ports := tablewriter.NewWriter(w)
	ports.Header("Port", "Status", "Service", "Error")
	if report.Ports.Failed() {
		_ = ports.Append([]string{"-", "unavailable", "", report.Ports.Error})
	}
	for _, port := range report.Ports.SortedPorts() {
		result := report.Ports.Results[port]
		service := ""
		if result.Service != nil {
			service = *result.Service
		}
		_ = ports.Append([]string{strconv.Itoa(port), string(result.Status), service, result.Error})
	}
	return ports.Render()
}

func overviewRows(report *scanning.ScanReport) [][]string {
	var rows [][]string

	ip := report.IPInfo
	if ip.Failed() {
		rows = append(rows, []string{"ip_info", "error", ip.Error})
	} else {
		rows = append(rows,
			[]string{"ip_info", "ip_address", ip.IPAddress},
			[]string{"ip_info", "reverse_dns", ip.ReverseDNS},
			[]string{"ip_info", "is_up", strconv.FormatBool(ip.IsUp)},
		)
	}

	dns := report.DNSRecords
	if dns.Failed() {
		rows = append(rows, []string{"dns_records", "error", dns.Error})
	}
	types := make([]string, 0, len(dns.Records))
	for t := range dns.Records {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		rows = append(rows, []string{"dns_records", t, strings.Join(dns.Records[t], ", ")})
	}

	srv := report.ServerInfo
	if srv.Failed() {
		rows = append(rows, []string{"server_info", "error", srv.Error})
		return rows
	}
	rows = append(rows,
		[]string{"server_info", "status_code", strconv.Itoa(srv.StatusCode)},
		[]string{"server_info", "server", srv.Server},
		[]string{"server_info", "content_type", srv.ContentType},
		[]string{"server_info", "final_url", srv.FinalURL},
	)
	if h := srv.SecurityHeaders; h != nil {
		rows = append(rows,
			[]string{"server_info", "strict_transport_security", deref(h.StrictTransportSecurity)},
			[]string{"server_info", "content_security_policy", deref(h.ContentSecurityPolicy)},
			[]string{"server_info", "x_frame_options", deref(h.XFrameOptions)},
		)
	}
	return rows
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
