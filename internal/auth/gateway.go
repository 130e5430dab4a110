// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/envelope"
	"github.com/wefix/authgate/pkg/errutil"
)

var tracer = otel.Tracer("authgate/auth")

// Flow names an authentication entry point.
type Flow string

// Authentication flows.
const (
	FlowEmail  Flow = "email"
	FlowGitHub Flow = Flow(account.ProviderGitHub)
	FlowGoogle Flow = Flow(account.ProviderGoogle)
)

// Stage is a step of a single authentication.
type Stage string

// Authentication stages, in order. StageIdentityVerified is skipped by the
// email flow.
const (
	StageReceived         Stage = "received"
	StageEnvelopeVerified Stage = "envelope_verified"
	StageIdentityVerified Stage = "identity_verified"
	StageAccountResolved  Stage = "account_resolved"
	StageTokenIssued      Stage = "token_issued"
	StageFailed           Stage = "failed"
)

// Result is a successful authentication.
type Result struct {
	Account *account.Account
	View    account.View
	Token   *AuthToken
}

// GatewayConfig holds the Gateway's dependencies.
type GatewayConfig struct {
	Codec      *envelope.Codec
	Resolver   *Resolver
	Issuer     *Issuer
	Strategies []Strategy
	Logger     *slog.Logger // optional, defaults to slog.Default()
}

// Gateway runs authentications: it opens the signed envelope, delegates to
// the flow's Strategy, resolves the account, and issues a token.
type Gateway struct {
	codec      *envelope.Codec
	resolver   *Resolver
	issuer     *Issuer
	strategies map[Flow]Strategy
	logger     *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Codec == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("envelope codec is required")
	}
	if cfg.Resolver == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("resolver is required")
	}
	if cfg.Issuer == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("issuer is required")
	}
	if len(cfg.Strategies) == 0 {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("at least one strategy is required")
	}

	strategies := make(map[Flow]Strategy, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		if s == nil {
			return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("strategy cannot be nil")
		}
		if _, dup := strategies[s.Flow()]; dup {
			return nil, oops.Code("AUTH_INVALID_DEPENDENCY").
				With("flow", string(s.Flow())).
				Errorf("duplicate strategy for flow %q", s.Flow())
		}
		strategies[s.Flow()] = s
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		codec:      cfg.Codec,
		resolver:   cfg.Resolver,
		issuer:     cfg.Issuer,
		strategies: strategies,
		logger:     logger,
	}, nil
}

// Flows returns the flows the gateway serves.
func (g *Gateway) Flows() []Flow {
	flows := make([]Flow, 0, len(g.strategies))
	for f := range g.strategies {
		flows = append(flows, f)
	}
	return flows
}

// Authenticate runs one authentication of raw, a wire envelope, through flow.
//
// On failure the returned error carries only a Reason code and its public
// message; the cause is logged.
func (g *Gateway) Authenticate(ctx context.Context, flow Flow, raw []byte) (*Result, error) {
	start := time.Now()
	flowLabel := string(flow)
	if _, ok := g.strategies[flow]; !ok {
		flowLabel = "unknown"
	}

	ctx, span := tracer.Start(ctx, "auth.authenticate",
		trace.WithAttributes(attribute.String("auth.flow", flowLabel)),
	)
	defer span.End()

	result, stage, err := g.run(ctx, span, flow, raw)
	if err != nil {
		reason := Classify(err)
		span.SetAttributes(
			attribute.String("auth.reason", string(reason)),
			attribute.String("auth.failed_after", string(stage)),
		)
		span.AddEvent(string(StageFailed))
		span.SetStatus(codes.Error, string(reason))

		level := slog.LevelInfo
		switch reason {
		case ReasonProviderUnavailable:
			level = slog.LevelWarn
		case ReasonFailed:
			level = slog.LevelError
		}
		errutil.LogErrorContext(ctx, g.logger.With(
			"flow", flowLabel,
			"stage", string(stage),
			"reason", string(reason),
		), level, "authentication failed", err)

		RecordAuthentication(flowLabel, string(reason), time.Since(start))
		return nil, reason.Err()
	}

	RecordAuthentication(flowLabel, OutcomeSuccess, time.Since(start))
	g.logger.InfoContext(ctx, "authentication succeeded",
		"flow", flowLabel,
		"account", result.Account,
	)
	return result, nil
}

// run returns the last stage reached along with any error.
func (g *Gateway) run(ctx context.Context, span trace.Span, flow Flow, raw []byte) (*Result, Stage, error) {
	stage := StageReceived
	advance := func(next Stage) {
		stage = next
		span.AddEvent(string(next))
	}

	strategy, ok := g.strategies[flow]
	if !ok {
		return nil, stage, oops.Code(string(ReasonMalformedEnvelope)).
			With("flow", string(flow)).
			Errorf("unknown authentication flow")
	}

	payload, err := g.codec.Open(raw)
	if err != nil {
		return nil, stage, err
	}
	advance(StageEnvelopeVerified)

	id, err := strategy.Identify(ctx, payload)
	if err != nil {
		return nil, stage, err
	}
	if id.External != nil {
		advance(StageIdentityVerified)
	}

	acct, err := g.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, stage, err
	}
	view, err := acct.View()
	if err != nil {
		return nil, stage, err
	}
	advance(StageAccountResolved)
	span.SetAttributes(attribute.String("account.id", acct.ID.String()))

	token, err := g.issuer.Issue(acct)
	if err != nil {
		return nil, stage, err
	}
	advance(StageTokenIssued)

	return &Result{Account: acct, View: view, Token: token}, stage, nil
}
