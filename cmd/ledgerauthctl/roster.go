package main

import (
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"github.com/universa-net/ledgernode/internal/roster"
	"github.com/universa-net/ledgernode/router"
)

var rosterFile string

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Inspect and edit a node's peer roster file",
}

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the entries in a roster file",
	RunE:  runRosterList,
}

var (
	rosterAddID   string
	rosterAddIP   string
	rosterAddPort int
	rosterAddKey  string
)

var rosterAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace a peer entry in a roster file",
	RunE:  runRosterAdd,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.PersistentFlags().StringVarP(&rosterFile, "file", "f", "roster.yaml", "roster YAML file")

	rosterCmd.AddCommand(rosterListCmd)

	rosterCmd.AddCommand(rosterAddCmd)
	rosterAddCmd.Flags().StringVar(&rosterAddID, "node-id", "", "peer node id (required)")
	rosterAddCmd.Flags().StringVar(&rosterAddIP, "ip", "", "peer IP address (required)")
	rosterAddCmd.Flags().IntVar(&rosterAddPort, "port", 0, "peer port (required)")
	rosterAddCmd.Flags().StringVar(&rosterAddKey, "key", "", "peer public key, base58-encoded (required)")
	_ = rosterAddCmd.MarkFlagRequired("node-id")
	_ = rosterAddCmd.MarkFlagRequired("ip")
	_ = rosterAddCmd.MarkFlagRequired("port")
	_ = rosterAddCmd.MarkFlagRequired("key")
}

func runRosterList(cmd *cobra.Command, args []string) error {
	entries, err := roster.Load(rosterFile)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := entries[id]
		fmt.Printf("%s\t%s:%d\t%s\n", id, e.IP, e.Port, base58.Encode(e.Key))
	}
	return nil
}

func runRosterAdd(cmd *cobra.Command, args []string) error {
	entries, err := roster.Load(rosterFile)
	if err != nil {
		return err
	}

	key, err := base58.Decode(rosterAddKey)
	if err != nil {
		return fmt.Errorf("malformed --key: %w", err)
	}

	if entries == nil {
		entries = router.Roster{}
	}
	entries[rosterAddID] = router.NetworkEntry{IP: rosterAddIP, Port: rosterAddPort, Key: key}

	if err := roster.Save(rosterFile, entries); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d entries\n", rosterFile, len(entries))
	return nil
}
