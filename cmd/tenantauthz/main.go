package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oarkflow/tenantauthz"
	"github.com/oarkflow/tenantauthz/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "validate":
		handleValidate()
	case "convert":
		handleConvert()
	case "stats":
		handleStats()
	case "seed":
		handleSeed()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("tenantauthz - operator tool for the tenant authorization engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tenantauthz validate <config>                      - Validate configuration")
	fmt.Println("  tenantauthz convert <input> <output>               - Convert between YAML and JSON")
	fmt.Println("  tenantauthz stats <config>                         - Show record statistics")
	fmt.Println("  tenantauthz seed <config>                          - Write configured records to the store")
	fmt.Println("  tenantauthz check <config> <token.json> permission|role|member <target> [org]")
	fmt.Println("                                                     - Run one evaluation and print the verdict")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func loadConfig(filename string) *tenantauthz.Config {
	cfg, err := tenantauthz.NewConfigLoader().LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tenantauthz validate <config>")
		os.Exit(1)
	}
	cfg := loadConfig(os.Args[2])
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Store:   %s\n", orDefault(cfg.Store.Driver, tenantauthz.DriverMemory))
	fmt.Printf("  Audit:   %s\n", orDefault(cfg.Audit.Driver, tenantauthz.DriverNone))
	fmt.Printf("  Records: %d\n", len(cfg.Records))
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: tenantauthz convert <input> <output>")
		os.Exit(1)
	}
	cfg := loadConfig(os.Args[2])
	outputFile := os.Args[3]

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		err = fmt.Errorf("unsupported file format: %s", filepath.Ext(outputFile))
	}
	if err == nil {
		err = os.WriteFile(outputFile, data, 0o644)
	}
	if err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", os.Args[2], outputFile)
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tenantauthz stats <config>")
		os.Exit(1)
	}
	cfg := loadConfig(os.Args[2])

	ctx := context.Background()
	backend, err := stores.Open(ctx, cfg)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	records := cfg.Records
	if cfg.Store.Driver != "" && cfg.Store.Driver != tenantauthz.DriverMemory {
		records, err = backend.Records.ListUserRecords(ctx, "")
		if err != nil {
			fmt.Printf("Error listing records: %v\n", err)
			os.Exit(1)
		}
	}

	perOrg := map[string]int{}
	perRole := map[string]int{}
	inactive, grants := 0, 0
	for _, r := range records {
		perOrg[r.OrganizationID]++
		perRole[r.Role.Identifier()]++
		if !r.IsActive {
			inactive++
		}
		for _, g := range r.Permissions {
			grants += len(g.Actions)
		}
	}

	fmt.Println("Record Statistics")
	fmt.Println("=================")
	fmt.Printf("Store:         %s\n", orDefault(cfg.Store.Driver, tenantauthz.DriverMemory))
	fmt.Printf("Records:       %d\n", len(records))
	fmt.Printf("Inactive:      %d\n", inactive)
	fmt.Printf("Organizations: %d\n", len(perOrg))
	fmt.Printf("Capabilities:  %d\n", grants)
	fmt.Println()
	if len(perRole) > 0 {
		fmt.Println("Roles:")
		for role, n := range perRole {
			fmt.Printf("  %-12s %d\n", role, n)
		}
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  System tenant:  %s\n", orDefault(cfg.Engine.SystemTenant, tenantauthz.DefaultSystemTenant))
	fmt.Printf("  Fetch timeout:  %dms\n", cfg.Engine.FetchTimeout)
	fmt.Printf("  Audit buffer:   %d\n", cfg.Engine.AuditBuffer)
	fmt.Printf("  Lag window:     %dms\n", cfg.Engine.LagWindow)
}

func handleSeed() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tenantauthz seed <config>")
		os.Exit(1)
	}
	cfg := loadConfig(os.Args[2])
	ctx := context.Background()
	backend, err := stores.Open(ctx, cfg)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	n, err := backend.Seed(ctx, cfg.Records)
	if err != nil {
		fmt.Printf("Error seeding records: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d records into %s store\n", n, orDefault(cfg.Store.Driver, tenantauthz.DriverMemory))
}

func handleCheck() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: tenantauthz check <config> <token.json> permission|role|member <target> [org]")
		os.Exit(1)
	}
	cfg := loadConfig(os.Args[2])
	mode, target := os.Args[4], os.Args[5]
	hint := ""
	if len(os.Args) > 6 {
		hint = os.Args[6]
	}
	raw, err := os.ReadFile(os.Args[3])
	if err != nil {
		fmt.Printf("Error reading token: %v\n", err)
		os.Exit(1)
	}
	tok := &tenantauthz.IdentityToken{}
	if err := json.Unmarshal(raw, tok); err != nil {
		fmt.Printf("Error decoding token: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	backend, err := stores.Open(ctx, cfg)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()
	if cfg.Store.Driver == "" || cfg.Store.Driver == tenantauthz.DriverMemory {
		if _, err := backend.Seed(ctx, cfg.Records); err != nil {
			fmt.Printf("Error seeding records: %v\n", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	opts := append(cfg.EngineOptions(), tenantauthz.WithMetrics(reg))
	if backend.Audit != nil {
		opts = append(opts, tenantauthz.WithAuditSink(backend.Audit, cfg.Engine.AuditBuffer))
	}
	engine, err := tenantauthz.NewEngine(backend.Records, opts...)
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		os.Exit(1)
	}

	var ac *tenantauthz.AuthContext
	switch mode {
	case "permission":
		ac, err = engine.ValidatePermission(ctx, tok, hint, target)
	case "role":
		ac, err = engine.ValidateRole(ctx, tok, hint, strings.Split(target, ","))
	case "member":
		ac, err = engine.ValidateOrganizationMember(ctx, tok, target)
	default:
		fmt.Printf("Unknown check mode: %s\n", mode)
		os.Exit(1)
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = engine.Close(closeCtx)

	printDecisionMetrics(reg)
	if err != nil {
		fmt.Printf("DENY  kind=%s message=%q detail=%q\n", tenantauthz.KindOf(err), tenantauthz.PublicMessage(err), tenantauthz.DetailOf(err))
		os.Exit(2)
	}
	out, _ := json.MarshalIndent(ac, "", "  ")
	fmt.Printf("ALLOW\n%s\n", out)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func printDecisionMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		return
	}
	for _, mf := range families {
		if mf.GetName() != "tenantauthz_decisions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Printf("metric %s{%s} %v\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
}
