package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"example.com/ptpport/internal/port"
	"example.com/ptpport/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "status":
		statusCmd(os.Args[2:])
	case "counters":
		countersCmd(os.Args[2:])
	case "foreign":
		foreignCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`ptpctl %s (built %s) <command> [options]

Commands:
  status    [--server <url>] [--json]
  counters  [--server <url>] [--json]
  foreign   [--server <url>] [--json]
  report    [--server <url>] --out <status.pdf>
`, version, buildDate)
}

func fetch(server, path string, v any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(server + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s%s: %s", server, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func fetchSnapshots(server string) ([]port.Snapshot, error) {
	var snaps []port.Snapshot
	if err := fetch(server, "/status", &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

func statusCmd(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := fs.String("server", "http://127.0.0.1:8091", "daemon status address")
	asJSON := fs.Bool("json", false, "print raw JSON")
	fs.Parse(args)

	snaps, err := fetchSnapshots(*server)
	if err != nil {
		fmt.Println("fetch status:", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(snaps)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tSTATE\tDOMAIN\tGRANDMASTER\tSTEPS\tUTC\tALARMS")
	for _, s := range snaps {
		utc := fmt.Sprintf("%d", s.CurrentUTCOffset)
		if !s.UTCOffsetValid {
			utc += "?"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
			s.Name, s.State, s.DomainNumber, s.GrandmasterIdentity,
			s.StepsRemoved, utc, s.Alarms)
	}
	w.Flush()
}

func countersCmd(args []string) {
	fs := flag.NewFlagSet("counters", flag.ExitOnError)
	server := fs.String("server", "http://127.0.0.1:8091", "daemon status address")
	asJSON := fs.Bool("json", false, "print raw JSON")
	fs.Parse(args)

	var counters map[string]port.Counters
	if err := fetch(*server, "/counters", &counters); err != nil {
		fmt.Println("fetch counters:", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(counters)
		return
	}
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tANN-RX\tSYNC-RX\tDRESP-RX\tDISCARDED\tSEQ-ERR\tGM-CHANGES\tNO-TX-TS")
	for _, name := range names {
		c := counters[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			name, c.AnnounceMessagesReceived, c.SyncMessagesReceived,
			c.DelayRespMessagesReceived, c.DiscardedMessages,
			c.SequenceMismatchErrors, c.MasterChanges, c.TxPktNoTimestamp)
	}
	w.Flush()
}

func foreignCmd(args []string) {
	fs := flag.NewFlagSet("foreign", flag.ExitOnError)
	server := fs.String("server", "http://127.0.0.1:8091", "daemon status address")
	asJSON := fs.Bool("json", false, "print raw JSON")
	fs.Parse(args)

	var foreign map[string][]port.ForeignMasterInfo
	if err := fetch(*server, "/foreign", &foreign); err != nil {
		fmt.Println("fetch foreign:", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(foreign)
		return
	}
	names := make([]string, 0, len(foreign))
	for name := range foreign {
		names = append(names, name)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tSOURCE\tGRANDMASTER\tPRI1\tCLASS\tSTEPS\tSELECTED")
	for _, name := range names {
		for _, f := range foreign[name] {
			sel := ""
			if f.Selected {
				sel = "*"
			}
			fmt.Fprintf(w, "%s\t%s.%d\t%s\t%d\t%d\t%d\t%s\n",
				name, f.SourcePortIdentity.ClockIdentity, f.SourcePortIdentity.PortNumber,
				f.GrandmasterIdentity, f.GrandmasterPriority1, f.ClockClass,
				f.StepsRemoved, sel)
		}
	}
	w.Flush()
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	server := fs.String("server", "http://127.0.0.1:8091", "daemon status address")
	out := fs.String("out", "", "output PDF path")
	fs.Parse(args)

	if *out == "" {
		fmt.Println("required: --out")
		os.Exit(1)
	}
	snaps, err := fetchSnapshots(*server)
	if err != nil {
		fmt.Println("fetch status:", err)
		os.Exit(1)
	}
	if err := report.SaveStatusPDF(snaps, time.Now(), *out); err != nil {
		fmt.Println("write report:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote", *out)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Println("encode:", err)
		os.Exit(1)
	}
}
