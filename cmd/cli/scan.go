package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gunout/network-scanner/internal/config"
	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/export"
	"github.com/gunout/network-scanner/internal/logging"
	"github.com/gunout/network-scanner/internal/metrics"
	"github.com/gunout/network-scanner/internal/scanning"
)

const maxPortNumber = 65535

// Viper keys for scan flags. Each can also be set through NETRECON_<KEY>.
const (
	keyPorts           = "ports"
	keyConcurrency     = "concurrency"
	keyTimeout         = "timeout"
	keyDNSServer       = "dns-server"
	keyUserAgent       = "user-agent"
	keyFormat          = "format"
	keyOutput          = "output"
	keyMetricsTextfile = "metrics-textfile"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <url-or-domain>",
	Short: "Scan a single target",
	Long: `Resolve the target, fetch its A, MX, NS and TXT records, probe its HTTP
headers and check TCP ports for liveness. Every probe runs independently; a
failing probe is reported in its own section of the report.

Targets without a scheme are probed over https.`,
	Example: `  netrecon scan example.com
  netrecon scan https://example.com --ports 22,80,443,8000-8100
  netrecon scan example.com --format json --output report.json
  netrecon scan example.com --dns-server 1.1.1.1 --timeout 30s`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	flags := scanCmd.Flags()
	flags.String(keyPorts, "", "Ports to scan: '80,443' or '1-1024' (default 21,22,80,443,8080,8443)")
	flags.Int(keyConcurrency, scanning.DefaultConcurrency, "Maximum number of port probes in flight")
	flags.Duration(keyTimeout, 0, "Timeout for the whole scan (0 = no limit)")
	flags.String(keyDNSServer, "", "DNS server for record lookups (default from /etc/resolv.conf)")
	flags.String(keyUserAgent, scanning.DefaultUserAgent, "User-Agent sent by the HTTP probe")
	flags.StringP(keyFormat, "f", string(export.FormatTable), "Output format: table, json, yaml, csv, text")
	flags.StringP(keyOutput, "o", "", "Write the report to a file instead of stdout")
	flags.String(keyMetricsTextfile, "", "Write Prometheus metrics to this textfile after the scan")

	bindScanFlags(flags)
}

// bindScanFlags binds the scan flags to viper so that environment variables
// and flags share the same keys.
func bindScanFlags(flags *pflag.FlagSet) {
	for _, key := range []string{
		keyPorts, keyConcurrency, keyTimeout, keyDNSServer,
		keyUserAgent, keyFormat, keyOutput, keyMetricsTextfile,
	} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", key, err)
		}
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyScanOverrides(cfg); err != nil {
		return err
	}

	format, err := export.ParseFormat(viper.GetString(keyFormat))
	if err != nil {
		return err
	}

	scanner, err := scanning.NewScanner(cfg.ScannerConfig())
	if err != nil {
		return err
	}

	report, err := scanner.Scan(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), viper.GetString(keyOutput), report, format); err != nil {
		return err
	}

	logging.Info("Scan report written", "scan_id", report.ScanID, "format", format)
	if failed := report.FailedSections(); len(failed) > 0 {
		logging.Warn("Scan completed with failed probes", "sections", strings.Join(failed, ","))
	}

	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.GetGlobalMetrics().WriteTextfile(path); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}
	return nil
}

// applyScanOverrides copies flags and environment variables that were set
// over the values loaded from the config file.
func applyScanOverrides(cfg *config.Config) error {
	if raw := viper.GetString(keyPorts); viper.IsSet(keyPorts) && raw != "" {
		ports, err := parsePorts(raw)
		if err != nil {
			cfgErr := errors.ErrConfigInvalid(keyPorts, raw)
			cfgErr.Cause = err
			return cfgErr
		}
		cfg.Scanning.Ports = ports
	}
	if viper.IsSet(keyConcurrency) {
		cfg.Scanning.Concurrency = viper.GetInt(keyConcurrency)
	}
	if viper.IsSet(keyTimeout) {
		cfg.Scanning.ScanTimeout = viper.GetDuration(keyTimeout)
	}
	if viper.IsSet(keyDNSServer) {
		cfg.Scanning.DNSServer = viper.GetString(keyDNSServer)
	}
	if viper.IsSet(keyUserAgent) {
		cfg.Scanning.UserAgent = viper.GetString(keyUserAgent)
	}
	if viper.IsSet(keyMetricsTextfile) {
		cfg.Metrics.TextfilePath = viper.GetString(keyMetricsTextfile)
	}
	return cfg.Validate()
}

func writeReport(stdout io.Writer, output string, report *scanning.ScanReport, format export.Format) error {
	if output == "" {
		return export.Export(stdout, report, format)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := export.Export(f, report, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(stdout, "Report written to %s\n", output)
	return nil
}

// parsePorts parses a comma-separated list of ports and ranges into a sorted
// list of distinct port numbers.
func parsePorts(list string) ([]int, error) {
	if strings.TrimSpace(list) == "" {
		return nil, fmt.Errorf("empty port list")
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid port range: %s", part)
			}

			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil || start < 1 || start > maxPortNumber {
				return nil, fmt.Errorf("invalid start port in range: %s", rangeParts[0])
			}

			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil || end < 1 || end > maxPortNumber {
				return nil, fmt.Errorf("invalid end port in range: %s", rangeParts[1])
			}

			if start > end {
				return nil, fmt.Errorf("start port cannot be greater than end port: %s", part)
			}
			for p := start; p <= end; p++ {
				seen[p] = struct{}{}
			}
			continue
		}

		port, err := strconv.Atoi(part)
		if err != nil || port < 1 || port > maxPortNumber {
			return nil, fmt.Errorf("invalid port: %s", part)
		}
		seen[port] = struct{}{}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("empty port list")
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports, nil
}
