// Command lsmkv is an interactive shell over an embedded storage engine.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pmoura/lsmkv/pkg/features"
	"github.com/pmoura/lsmkv/pkg/logging"
	"github.com/pmoura/lsmkv/pkg/lsm"
)

type shell struct {
	engine   *lsm.Engine
	features *features.Client
	scanner  *bufio.Scanner
}

func main() {
	dataDir := flag.String("data", "./.lsmkv-data", "Data directory")
	flag.Parse()

	cfg := lsm.DefaultConfig(*dataDir)
	engine, err := lsm.Open(cfg, logging.Discard())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	stats := engine.Stats()
	fmt.Printf("lsmkv shell — %s\n", *dataDir)
	fmt.Printf("  memtable records: %d\n", stats.MemtableRecords)
	fmt.Printf("  sstables:         %d\n\n", stats.SSTableCount)
	fmt.Println("Type 'help' for available commands, 'exit' to quit")

	sh := &shell{
		engine:   engine,
		features: features.NewClient(engine, 0),
		scanner:  bufio.NewScanner(os.Stdin),
	}
	sh.run()
}

func (sh *shell) run() {
	for {
		fmt.Print("> ")
		if !sh.scanner.Scan() {
			return
		}
		line := strings.TrimSpace(sh.scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 3)
		cmd := strings.ToLower(parts[0])

		switch cmd {
		case "exit", "quit":
			return
		case "help":
			sh.printHelp()
		case "get":
			sh.cmdGet(parts)
		case "set", "put":
			sh.cmdSet(parts)
		case "del", "delete":
			sh.cmdDelete(parts)
		case "scan":
			sh.cmdScan()
		case "keys":
			sh.cmdKeys()
		case "search":
			sh.cmdSearch(parts)
		case "stats":
			sh.cmdStats()
		case "flush":
			sh.cmdFlush()
		case "feature":
			sh.cmdFeature(parts)
		default:
			fmt.Printf("unknown command %q, try 'help'\n", cmd)
		}
	}
}

func (sh *shell) printHelp() {
	fmt.Println(`Commands:
  get <key>                  Read a value
  set <key> <value>          Store a value
  del <key>                  Delete a key
  scan                       List all key/value pairs
  keys                       List all keys
  search <pattern> [prefix]  Find keys containing (or starting with) pattern
  stats                      Show engine statistics
  flush                      Force a memtable flush
  feature list               List feature flags
  feature on|off <name>      Toggle a feature flag
  exit                       Quit`)
}

func (sh *shell) cmdGet(parts []string) {
	if len(parts) < 2 {
		fmt.Println("usage: get <key>")
		return
	}
	value, found, err := sh.engine.Get(parts[1])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !found {
		fmt.Println("(not found)")
		return
	}
	fmt.Println(string(value))
}

func (sh *shell) cmdSet(parts []string) {
	if len(parts) < 3 {
		fmt.Println("usage: set <key> <value>")
		return
	}
	if err := sh.engine.Put(parts[1], []byte(parts[2])); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func (sh *shell) cmdDelete(parts []string) {
	if len(parts) < 2 {
		fmt.Println("usage: del <key>")
		return
	}
	if err := sh.engine.Delete(parts[1]); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func (sh *shell) cmdScan() {
	pairs, err := sh.engine.Scan()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, kv := range pairs {
		fmt.Printf("%s = %s\n", kv.Key, string(kv.Value))
	}
	fmt.Printf("(%d pairs)\n", len(pairs))
}

func (sh *shell) cmdKeys() {
	keys, err := sh.engine.Keys()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	fmt.Printf("(%d keys)\n", len(keys))
}

func (sh *shell) cmdSearch(parts []string) {
	if len(parts) < 2 {
		fmt.Println("usage: search <pattern> [prefix]")
		return
	}
	prefix := len(parts) > 2 && parts[2] == "prefix"
	matches, err := sh.engine.Search(parts[1], prefix)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, kv := range matches {
		fmt.Printf("%s = %s\n", kv.Key, string(kv.Value))
	}
	fmt.Printf("(%d matches)\n", len(matches))
}

func (sh *shell) cmdStats() {
	stats := sh.engine.Stats()
	fmt.Printf("memtable: %d records, %d bytes\n", stats.MemtableRecords, stats.MemtableBytes)
	fmt.Printf("sstables: %d files, %d records, %d bytes\n", stats.SSTableCount, stats.SSTableRecords, stats.SSTableBytes)
	fmt.Printf("wal:      %d bytes\n", stats.WALBytes)
	fmt.Printf("cache:    %d/%d blocks, %d hits, %d misses\n",
		stats.Cache.Len, stats.Cache.Cap, stats.Cache.Hits, stats.Cache.Misses)
}

func (sh *shell) cmdFlush() {
	if err := sh.engine.Flush(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("flushed")
}

func (sh *shell) cmdFeature(parts []string) {
	if len(parts) < 2 {
		fmt.Println("usage: feature list | feature on|off <name>")
		return
	}
	switch parts[1] {
	case "list":
		set, err := sh.features.List()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		for name, flag := range set.Flags {
			state := "off"
			if flag.Enabled {
				state = "on"
			}
			fmt.Printf("%s: %s  %s\n", name, state, flag.Description)
		}
		fmt.Printf("(version %d, %d flags)\n", set.Version, len(set.Flags))
	case "on", "off":
		if len(parts) < 3 {
			fmt.Println("usage: feature on|off <name>")
			return
		}
		if err := sh.features.SetFlag(parts[2], parts[1] == "on", ""); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("ok")
	default:
		fmt.Println("usage: feature list | feature on|off <name>")
	}
}
