// Package scanning provides the single-target reconnaissance engine for netrecon.
//
// A scan takes one URL or domain, runs four independent probes against it and
// merges their findings into a ScanReport. Each probe records its own failure
// in its report section, so a dead DNS server or a closed web port never
// prevents the other sections from being filled in.
//
// # Overview
//
// The package is built around the Scanner type, which is configured with a
// Config and returns a ScanReport from Scan. The convenience function Scan
// runs a scan with DefaultConfig and a background context.
//
// # Main Components
//
// ## Address Resolver
//
// Resolver turns the target host into an IPInfo section:
//   - IPAddress: first resolved address, IPv4 preferred
//   - ReverseDNS: PTR name without the trailing dot, empty when absent
//   - IsUp: whether a TCP connect to the liveness port succeeded
//
// ## DNS Record Fetcher
//
// DNSFetcher queries A, MX, NS and TXT records concurrently with
// github.com/miekg/dns. Record types without answers are left out of the
// set. The section only carries an error when no resolver could be reached.
//
// ## HTTP Probe
//
// HTTPProbe sends a HEAD request, follows redirects and records the Server and
// Content-Type headers, the status code, the final URL and the
// Strict-Transport-Security, Content-Security-Policy and X-Frame-Options
// headers.
//
// ## Port Scan Engine
//
// PortScanner connects to every candidate port with at most Concurrency
// probes in flight, admitted through a Limiter. Results are classified as:
//   - "open": the connect succeeded; Service names the well-known service
//   - "closed": the connect was refused, timed out or the host was unreachable
//   - "error": any other failure, including a canceled scan
//
// # Usage Examples
//
// ## Basic Scan
//
//	report, err := scanning.Scan("example.com")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(report.IPInfo.IPAddress, report.Ports.OpenPorts())
//
// ## Custom Configuration
//
//	cfg := scanning.DefaultConfig()
//	cfg.Ports = []int{22, 80, 443, 3306}
//	cfg.Concurrency = 4
//	cfg.ScanTimeout = 30 * time.Second
//
//	scanner, err := scanning.NewScanner(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	report, err := scanner.Scan(ctx, "https://example.com")
//
// # Error Handling
//
// Scan only returns an error when the target is rejected before any probe
// runs: empty input yields errors.CodeValidation and an unparsable URL or an
// unsupported scheme yields errors.CodeTargetInvalid. Probe failures are data,
// stored as the Error field of the affected section; FailedSections lists
// them.
//
// # Thread Safety
//
// A Scanner keeps no state between scans and may be shared by goroutines.
// Within a scan each probe writes only its own report section.
package scanning
