// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/envelope"
)

// maxSignInput caps the payload read by sign.
const maxSignInput = 1 << 20

// NewSignCmd creates the sign subcommand.
func NewSignCmd() *cobra.Command {
	var flow string

	cmd := &cobra.Command{
		Use:   "sign [FILE]",
		Short: "Wrap a JSON payload in a signed envelope",
		Long: `Reads a JSON payload from FILE, or stdin when FILE is omitted or "-",
and prints the signed envelope using the configured envelope secret.
With --flow the payload is first checked against that flow's request shape.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runSign(cmd, path, auth.Flow(flow))
		},
	}

	cmd.Flags().StringVar(&flow, "flow", "", "check the payload against a flow's request (email, github, google)")

	return cmd
}

func runSign(cmd *cobra.Command, path string, flow auth.Flow) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateEnvelope(); err != nil {
		return err
	}
	codec, err := envelope.NewCodec([]byte(cfg.Envelope.Secret), cfg.Envelope.Digest)
	if err != nil {
		return err
	}

	payload, err := readSignInput(cmd, path)
	if err != nil {
		return err
	}
	if err := checkFlowPayload(flow, payload); err != nil {
		return err
	}

	raw, err := codec.Seal(payload)
	if err != nil {
		return err
	}
	cmd.Println(string(raw))
	return nil
}

func readSignInput(cmd *cobra.Command, path string) (json.RawMessage, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // path is an operator-supplied CLI argument
		if err != nil {
			return nil, oops.Code("SIGN_READ_FAILED").With("file", path).Wrap(err)
		}
		defer f.Close() //nolint:errcheck // read-only
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSignInput+1))
	if err != nil {
		return nil, oops.Code("SIGN_READ_FAILED").With("file", path).Wrap(err)
	}
	if len(data) > maxSignInput {
		return nil, oops.Code("SIGN_INVALID_PAYLOAD").With("limit", maxSignInput).Errorf("payload exceeds %d bytes", maxSignInput)
	}
	if !json.Valid(data) {
		return nil, oops.Code("SIGN_INVALID_PAYLOAD").Errorf("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// checkFlowPayload decodes payload into flow's request type, applying the
// same schema the gateway does.
func checkFlowPayload(flow auth.Flow, payload json.RawMessage) error {
	var dst any
	switch flow {
	case "":
		return nil
	case auth.FlowEmail:
		dst = &auth.EmailRequest{}
	case auth.FlowGitHub, auth.FlowGoogle:
		dst = &auth.SSORequest{}
	default:
		return oops.Code("SIGN_UNKNOWN_FLOW").With("flow", string(flow)).Errorf("unknown flow %q", flow)
	}
	if err := envelope.Payload(payload).Decode(dst); err != nil {
		return oops.With("flow", string(flow)).Wrap(err)
	}
	return nil
}
