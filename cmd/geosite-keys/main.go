package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/geosite-keys/internal/canon"
	"github.com/bnema/geosite-keys/internal/emitter"
	"github.com/bnema/geosite-keys/internal/extractor"
	"github.com/bnema/geosite-keys/internal/fetcher"
	"github.com/bnema/geosite-keys/internal/geosite"
	"github.com/bnema/geosite-keys/internal/logging"
	"github.com/bnema/geosite-keys/internal/matcher"
	"github.com/bnema/geosite-keys/internal/models"
	"github.com/bnema/geosite-keys/internal/rules"
)

const defaultConfigPath = "./configs/geosite_keys.toml"

var (
	cfgFile string
	cfg     models.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "geosite-keys",
	Short: "Extract CN domains from a geosite archive into a binary key file",
	Long: `A tool that extracts the cn and apple-cn groups of a v2ray geosite archive,
reduces suffix domains to their registrable form and writes them as a sorted
file of 128-bit little-endian keys, a text mirror and a residual archive.`,
	SilenceUsage: true,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract domains and write the key file",
	RunE:  runExtract,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <host>...",
	Short: "Check hosts against a key file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLookup,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show the effective selection and rule tables",
	RunE:  runRules,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	RunE:  runInit,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: "+defaultConfigPath+")")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output")

	extractCmd.Flags().StringP("input", "i", "", "geosite archive path or URL (default from config)")
	extractCmd.Flags().StringP("output", "o", "", "output directory (default from config)")
	extractCmd.Flags().Bool("dry-run", false, "extract without writing files")
	extractCmd.Flags().Int("workers", 0, "goroutines evaluating records (default from config)")
	extractCmd.Flags().Bool("no-residual", false, "skip the residual geosite archive")

	lookupCmd.Flags().String("keys", "", "key file (default from config)")

	rootCmd.AddCommand(extractCmd, lookupCmd, rulesCmd, initCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("geosite_keys")
		viper.SetConfigType("toml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(&cfg, hook); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing config: %v\n", err)
	}
}

func setDefaults() {
	def := fullDefaultConfig()

	viper.SetDefault("http.timeout", time.Duration(def.HTTP.Timeout).String())
	viper.SetDefault("http.retries", def.HTTP.Retries)
	viper.SetDefault("input.path", def.Input.Path)
	viper.SetDefault("select.tags", def.Select.Tags)
	viper.SetDefault("rules.additional_domains", def.Rules.AdditionalDomains)
	viper.SetDefault("rules.excluded_domains", def.Rules.ExcludedDomains)
	viper.SetDefault("rules.excluded_tlds", def.Rules.ExcludedTLDs)
	viper.SetDefault("psl.file", def.PSL.File)
	viper.SetDefault("psl.ignore_private", def.PSL.IgnorePrivate)
	viper.SetDefault("extract.workers", def.Extract.Workers)
	viper.SetDefault("output.dir", def.Output.Dir)
	viper.SetDefault("output.binary_file", def.Output.BinaryFile)
	viper.SetDefault("output.text_file", def.Output.TextFile)
	viper.SetDefault("output.residual_file", def.Output.ResidualFile)
	viper.SetDefault("output.residual", def.Output.Residual)
	viper.SetDefault("output.residual_tag", def.Output.ResidualTag)
	viper.SetDefault("lookup.keys", def.Lookup.Keys)
	viper.SetDefault("lookup.pass_tlds", def.Lookup.PassTLDs)
}

func fullDefaultConfig() models.Config {
	def := models.DefaultConfig()
	def.Rules = rules.DefaultConfig()
	return def
}

func newLogger(cmd *cobra.Command) *logrus.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return logging.New(os.Stderr, verbose)
}

// newRuleSet builds the canonicalizer from the PSL settings and the rule set on top of it.
func newRuleSet(log logrus.FieldLogger) (*rules.RuleSet, error) {
	var oracle canon.Oracle
	if cfg.PSL.File != "" {
		list, err := canon.LoadListFile(cfg.PSL.File, canon.ListOptions{IgnorePrivate: cfg.PSL.IgnorePrivate})
		if err != nil {
			return nil, err
		}
		log.WithField("path", cfg.PSL.File).WithField("rules", list.Size()).Info("public suffix list loaded")
		oracle = list
	}
	return rules.New(cfg.Rules, canon.New(oracle)), nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	outputDir, _ := cmd.Flags().GetString("output")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	workers, _ := cmd.Flags().GetInt("workers")
	noResidual, _ := cmd.Flags().GetBool("no-residual")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if input == "" {
		input = cfg.Input.Path
	}
	if outputDir == "" {
		outputDir = cfg.Output.Dir
	}
	if workers == 0 {
		workers = cfg.Extract.Workers
	}

	log := newLogger(cmd)

	fmt.Printf("Loading %s...\n", input)
	if dryRun {
		fmt.Println("[DRY RUN] No files will be written")
	}

	data, err := fetcher.New(cfg.HTTP, nil).Load(cmd.Context(), input)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	fmt.Printf("  Read: %d bytes\n", len(data))

	groups, err := geosite.Decode(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", input, err)
	}
	fmt.Printf("  Decoded: %d groups\n", len(groups))

	rs, err := newRuleSet(log)
	if err != nil {
		return err
	}

	ex := extractor.New(rs,
		extractor.WithTags(cfg.Select.Tags...),
		extractor.WithWorkers(workers),
		extractor.WithLogger(log),
	)
	set := ex.Extract(groups)
	stats := ex.Stats()

	fmt.Printf("\n  Selected: %d groups, %d records (%d suffix, %d residual)\n",
		stats.Groups, stats.Records, stats.Suffix, stats.Residual)
	fmt.Printf("  Keys: %d (duplicates: %d, skipped: %d, additional: %d)\n",
		set.Len(), stats.Duplicates, stats.Skipped, stats.Additional)

	if verbose {
		fmt.Printf("  Fallbacks: %d, truncated: %d\n", stats.Fallbacks, stats.Truncated)
		reasons := make([]string, 0, len(stats.SkipReasons))
		for reason := range stats.SkipReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Printf("    - %s: %d\n", reason, stats.SkipReasons[reason])
		}
	}

	if dryRun {
		fmt.Println("\nDone!")
		return nil
	}

	em := emitter.New(afero.NewOsFs())
	binaryPath := filepath.Join(outputDir, cfg.Output.BinaryFile)
	textPath := filepath.Join(outputDir, cfg.Output.TextFile)
	if err := em.Emit(set, binaryPath, textPath); err != nil {
		return err
	}
	fmt.Printf("\n  Wrote %s\n  Wrote %s\n", binaryPath, textPath)

	if cfg.Output.Residual && !noResidual {
		residualPath := filepath.Join(outputDir, cfg.Output.ResidualFile)
		if err := em.EmitResidual(set, residualPath, cfg.Output.ResidualTag); err != nil {
			return err
		}
		fmt.Printf("  Wrote %s (%d records)\n", residualPath, len(emitter.MergeResidual(set.Residual())))
	}

	fmt.Println("\nDone!")
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	keysPath, _ := cmd.Flags().GetString("keys")
	if keysPath == "" {
		keysPath = cfg.Lookup.Keys
	}

	log := newLogger(cmd)
	rs, err := newRuleSet(log)
	if err != nil {
		return err
	}

	m, err := matcher.Load(afero.NewOsFs(), keysPath, rs,
		matcher.WithPassTLDs(cfg.Lookup.PassTLDs...),
		matcher.WithLogger(log),
	)
	if err != nil {
		return err
	}

	for _, host := range args {
		result := "miss"
		if m.Match(host) {
			result = "match"
		}
		fmt.Printf("%-40s %s\n", host, result)
	}
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	rs, err := newRuleSet(newLogger(cmd))
	if err != nil {
		return err
	}

	psl := "built-in (golang.org/x/net/publicsuffix)"
	if cfg.PSL.File != "" {
		psl = cfg.PSL.File
	}

	fmt.Printf("Selected tags:      %s\n", strings.Join(cfg.Select.Tags, ", "))
	fmt.Printf("Public suffix list: %s\n\n", psl)
	fmt.Printf("Excluded TLDs (%d):\n  %s\n\n", len(rs.ExcludedTLDs()), strings.Join(rs.ExcludedTLDs(), " "))
	printList("Excluded domains", rs.ExcludedDomains())
	printList("Additional domains", rs.AdditionalDomains())
	return nil
}

func printList(title string, items []string) {
	fmt.Printf("%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Printf("  %s\n", item)
	}
	fmt.Println()
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := defaultConfigPath
	if cfgFile != "" {
		configPath = cfgFile
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	body, err := toml.Marshal(fullDefaultConfig())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}

	header := "# geosite-keys configuration\n# Every key is optional; missing keys fall back to these defaults.\n\n"

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := os.WriteFile(configPath, append([]byte(header), body...), 0644); err != nil {
		return err
	}

	fmt.Printf("Created config file: %s\n", configPath)
	return nil
}
