package main

import (
	"encoding/json"
	"fmt"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/output/console"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(configCmd)
}

var (
	readCmd = &cobra.Command{
		Use:   "read",
		Short: "Take a single reading",
		Args:  cobra.NoArgs,
		RunE:  read,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Show the device configuration byte and the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  showConfig,
	}
)

func read(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	s, err := newSensor(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()
	rr, err := s.Read()
	if err != nil {
		return err
	}
	return console.NewConsole().Publish(rr)
}

type configReader interface {
	ReadConfig() (byte, error)
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	for i := range cfg.Outputs {
		if m := cfg.Outputs[i].MQTT; m != nil && m.Password != "" {
			masked := *m
			masked.Password = "***"
			cfg.Outputs[i].MQTT = &masked
		}
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))

	s, err := newSensor(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()
	if cr, ok := s.(configReader); ok {
		c, err := cr.ReadConfig()
		if err != nil {
			return fmt.Errorf("read device config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "device config: 0x%02x\n", c)
	}
	return nil
}
