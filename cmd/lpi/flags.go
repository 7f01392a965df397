package main

// Options bundles every CLI flag: one struct plus one package-level
// var registered against cmdRoot.Flags() in init().
type Options struct {
	Debug       int
	Write       bool
	Serial      bool
	Greedy      bool
	showVersion bool

	ConfigPath string
	MetricsAddr string
}

var runOptions Options

func init() {
	f := cmdRoot.Flags()
	f.IntVarP(&runOptions.Debug, "debug", "d", 0, "diagnostic verbosity, 0-9")
	f.BoolVarP(&runOptions.Write, "write", "w", false, "write an index file per input, named <input>.lpi")
	f.BoolVarP(&runOptions.Serial, "serial", "s", false, "force serial mode")
	f.BoolVarP(&runOptions.Greedy, "greedy", "g", false, "tokenizer quote-ignore mode")
	f.BoolVarP(&runOptions.showVersion, "version", "v", false, "print version and exit")
	f.StringVar(&runOptions.ConfigPath, "config", "", "path to a YAML tuning-override file")
	f.StringVar(&runOptions.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
}
