// Copyright 2026 Edgewire. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edgewire/modbus"
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write coils or registers",
}

var writeCoilCmd = &cobra.Command{
	Use:   "coil <address> <on|off>",
	Short: "Write a single coil (FC05)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		value, err := parseBit(args[1])
		if err != nil {
			return err
		}
		return withClient(func(client modbus.Client) error {
			return client.WriteSingleCoil(address, value)
		})
	},
}

var writeRegisterCmd = &cobra.Command{
	Use:   "register <address> <value>",
	Short: "Write a single holding register (FC06)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		value, err := parseRegister(args[1])
		if err != nil {
			return err
		}
		return withClient(func(client modbus.Client) error {
			return client.WriteSingleRegister(address, value)
		})
	},
}

var writeCoilsCmd = &cobra.Command{
	Use:   "coils <address> <on|off>...",
	Short: "Write multiple coils (FC15)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		values := make([]bool, 0, len(args)-1)
		for _, arg := range args[1:] {
			v, err := parseBit(arg)
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		return withClient(func(client modbus.Client) error {
			return client.WriteMultipleCoils(address, values)
		})
	},
}

var writeRegistersCmd = &cobra.Command{
	Use:   "registers <address> <value>...",
	Short: "Write multiple holding registers (FC16)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		values := make([]uint16, 0, len(args)-1)
		for _, arg := range args[1:] {
			v, err := parseRegister(arg)
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		return withClient(func(client modbus.Client) error {
			return client.WriteMultipleRegisters(address, values)
		})
	},
}

func init() {
	writeCmd.AddCommand(writeCoilCmd)
	writeCmd.AddCommand(writeRegisterCmd)
	writeCmd.AddCommand(writeCoilsCmd)
	writeCmd.AddCommand(writeRegistersCmd)
	rootCmd.AddCommand(writeCmd)
}

func parseAddress(arg string) (uint16, error) {
	v, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", arg, err)
	}
	return uint16(v), nil
}

func parseRegister(arg string) (uint16, error) {
	v, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid register value %q: %w", arg, err)
	}
	return uint16(v), nil
}

func parseBit(arg string) (bool, error) {
	switch arg {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid coil state %q, use on or off", arg)
}
