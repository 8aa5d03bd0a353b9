// Package main provides a one-shot command-line client for the rendezvous
// discovery mechanism: broadcasting the local descriptor into the current
// slot, listening for a single discovery round, and reporting slot status.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rng-ops/infrasim/internal/binder"
	"github.com/rng-ops/infrasim/internal/config"
	"github.com/rng-ops/infrasim/internal/descriptor"
	"github.com/rng-ops/infrasim/internal/learner"
	"github.com/rng-ops/infrasim/internal/logger"
	"github.com/rng-ops/infrasim/internal/oracle"
	"github.com/rng-ops/infrasim/internal/rendezvous"
	"github.com/rng-ops/infrasim/internal/wire"
)

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	timeout := flag.Duration("timeout", 5*time.Second, "How long to wait for a discovery round")
	jsonOut := flag.Bool("json", false, "Print machine-readable JSON output")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("rendezvous-client version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(flag.Args()) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Args()[0]
	args := flag.Args()[1:]

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDefault()

	var cmdErr error
	switch strings.ToLower(command) {
	case "status":
		cmdErr = runStatus(cfg, *jsonOut)
	case "broadcast":
		cmdErr = runBroadcast(cfg, log)
	case "discover":
		cmdErr = runDiscover(cfg, log, *timeout, *jsonOut)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	_ = args // reserved for future subcommand-specific flags
	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("rendezvous-client - CLI for the IPv6 rendezvous discovery mechanism")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rendezvous-client [options] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status      Show the current and upcoming rendezvous slots")
	fmt.Println("  broadcast   Bind the current slot's address and send the local descriptor once")
	fmt.Println("  discover    Bind the current slot's address and listen for peer descriptors")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config <path>   Configuration file (default: " + config.DefaultConfigPath + ")")
	fmt.Println("  -timeout <dur>   How long 'discover' listens for peers (default: 5s)")
	fmt.Println("  -json            Print machine-readable JSON output")
}

type statusReport struct {
	Time      string   `json:"time"`
	Epoch     uint64   `json:"epoch"`
	Slot      uint32   `json:"slot"`
	Remaining string   `json:"remaining"`
	Address   string   `json:"address"`
	Port      int      `json:"port"`
	Interface string   `json:"interface"`
	Upcoming  []string `json:"upcoming"`
}

func runStatus(cfg *config.Config, jsonOut bool) error {
	macKey, err := cfg.MACKey()
	if err != nil {
		return err
	}
	o := oracle.New(cfg.EpochSeconds, cfg.SlotsPerEpoch)

	now := time.Now()
	key, remaining := o.Current(now)
	endpoint := rendezvous.Derive(macKey, key)

	const upcomingCount = 3
	upcomingKeys := o.Upcoming(now, upcomingCount)
	upcoming := make([]string, 0, len(upcomingKeys))
	for _, k := range upcomingKeys {
		upcoming = append(upcoming, rendezvous.Derive(macKey, k).String())
	}

	report := statusReport{
		Time:      now.Format(time.RFC3339),
		Epoch:     key.Epoch,
		Slot:      key.Slot,
		Remaining: remaining.Round(time.Millisecond).String(),
		Address:   endpoint.Address.String(),
		Port:      endpoint.Port,
		Interface: cfg.Interface,
		Upcoming:  upcoming,
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("time:      %s\n", report.Time)
	fmt.Printf("epoch:     %d\n", report.Epoch)
	fmt.Printf("slot:      %d\n", report.Slot)
	fmt.Printf("remaining: %s\n", report.Remaining)
	fmt.Printf("endpoint:  [%s]:%d\n", report.Address, report.Port)
	fmt.Printf("interface: %s\n", report.Interface)
	fmt.Println("upcoming:")
	for _, u := range report.Upcoming {
		fmt.Printf("  %s\n", u)
	}
	return nil
}

func runBroadcast(cfg *config.Config, log *logger.Logger) error {
	macKey, err := cfg.MACKey()
	if err != nil {
		return err
	}
	local, err := descriptor.LoadLocal(cfg.DescriptorPath)
	if err != nil {
		return err
	}
	if !local.Present {
		return fmt.Errorf("no local descriptor present at %s", cfg.DescriptorPath)
	}

	o := oracle.New(cfg.EpochSeconds, cfg.SlotsPerEpoch)
	key, _ := o.Current(time.Now())
	endpoint := rendezvous.Derive(macKey, key)

	b := binder.New()
	return binder.Scoped(b, cfg.Interface, endpoint.Address, func() error {
		conn, err := net.ListenUDP("udp6", &net.UDPAddr{IP: endpoint.Address, Port: endpoint.Port})
		if err != nil {
			return err
		}
		defer conn.Close()

		iface, err := net.InterfaceByName(cfg.Interface)
		if err != nil {
			return err
		}
		dst := &net.UDPAddr{IP: endpoint.Address, Port: endpoint.Port, Zone: iface.Name}

		frame := wire.Encode(local.JSON, local.Signature)
		if _, err := conn.WriteToUDP(frame, dst); err != nil {
			return err
		}
		log.Info("broadcast sent", "endpoint", endpoint.String(), "node_id", local.Descriptor.NodeID)
		return nil
	})
}

func runDiscover(cfg *config.Config, log *logger.Logger, timeout time.Duration, jsonOut bool) error {
	macKey, err := cfg.MACKey()
	if err != nil {
		return err
	}
	local, err := descriptor.LoadLocal(cfg.DescriptorPath)
	if err != nil {
		return err
	}

	store, err := descriptor.NewStore(cfg.PeersDir)
	if err != nil {
		return err
	}
	selfNodeID := ""
	if local.Present {
		selfNodeID = local.Descriptor.NodeID
	}
	l := learner.New(log, selfNodeID, store, nil, "", cfg.MaxPeers)

	o := oracle.New(cfg.EpochSeconds, cfg.SlotsPerEpoch)
	key, _ := o.Current(time.Now())
	endpoint := rendezvous.Derive(macKey, key)

	b := binder.New()

	var foundIDs []string
	err = binder.Scoped(b, cfg.Interface, endpoint.Address, func() error {
		conn, err := net.ListenUDP("udp6", &net.UDPAddr{IP: endpoint.Address, Port: endpoint.Port})
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		buf := make([]byte, wire.MaxFrameSize)
		for {
			deadline, ok := ctx.Deadline()
			if !ok {
				deadline = time.Now().Add(timeout)
			}
			conn.SetReadDeadline(deadline)
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				break
			}
			res, err := l.Handle(buf[:n])
			if err != nil {
				log.Warn("failed to process inbound frame", "error", err)
				continue
			}
			if res.Accepted {
				foundIDs = append(foundIDs, res.NodeID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	descriptors := make([]map[string]any, 0, len(foundIDs))
	for _, id := range foundIDs {
		raw, rerr := os.ReadFile(store.DescriptorPath(id))
		if rerr != nil {
			continue
		}
		var obj map[string]any
		if json.Unmarshal(raw, &obj) == nil {
			descriptors = append(descriptors, obj)
		}
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(descriptors)
	}

	if len(descriptors) == 0 {
		fmt.Println("no peers discovered")
		return nil
	}
	fmt.Println("discovered peers:")
	for _, id := range foundIDs {
		fmt.Printf("  %s\n", id)
	}
	return nil
}
