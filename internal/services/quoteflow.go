package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

var flowTracer = otel.Tracer("services/quoteflow")

// Fixed command surface. The confirmation and mode cards emit these as
// button message payloads; the cancel command is honored in every state.
const (
	CmdStart   = "start quote"
	CmdCancel  = "cancel quote"
	CmdConfirm = "quote data ok"
	CmdReject  = "quote data wrong"
	CmdRetry   = "quote retype"
	CmdAir     = "quote mode air"
	CmdSea     = "quote mode sea"
)

const (
	promptStart = "Quote mode started.\n\n" +
		"Paste the customer's message (package dimensions, weight, postal code).\n" +
		"You can paste everything at once or over several messages.\n\n" +
		"Send \"" + CmdCancel + "\" at any time to exit."
	promptIncomplete = "No complete package data detected yet.\n" +
		"Make sure the message includes:\n" +
		"- dimensions (L x W x H, cm)\n" +
		"- weight (kg)\n" +
		"- a Canadian postal code (e.g. V6X 1Z7)\n\n" +
		"Paste more text, or send \"" + CmdCancel + "\" to exit."
	promptCorrecting = "Please re-enter the package details.\n\n" +
		"Format (one box per line):\n" +
		"113*50*20 7\n" +
		"80*40*30 5\n" +
		"B2V1R9\n\n" +
		"Postal codes go on their own line; provide two for domestic-only shipments.\n" +
		"Pasting the customer's message again also works."
	promptBadCorrection = "Could not parse that input.\n\n" +
		"Expected format (one box per line):\n" +
		"length*width*height weight\n\n" +
		"Example:\n113*50*20 7\nB2V1R9\n\n" +
		"Dimensions in cm, weight in kg."
	promptNeedPostal = "No postal code detected.\n" +
		"Add a Canadian postal code (e.g. V6X 1Z7), or send \"" + CmdCancel + "\" to exit."
	promptPickMode   = "Pick air or sea shipping to continue."
	promptComputing  = "Fetching rates and computing the quote, one moment..."
	promptCancelled  = "Quote cancelled."
	promptDataLost   = "Session data was lost, send \"" + CmdStart + "\" to start over."
	promptNoQuotes   = "No carrier quotes available right now, try again later."
	promptQuoteError = "Something went wrong while computing the quote, try again later."
)

// ComparisonRow is one entry of the result comparison table.
type ComparisonRow struct {
	Quote    domain.ServiceQuote
	Selected bool
	Warn     bool
}

// comparisonLimit caps the comparison table at the cheapest N services.
const comparisonLimit = 8

// QuoteMessenger is the card/message-rendering collaborator the flow
// delegates all presentation to.
type QuoteMessenger interface {
	PushText(ctx context.Context, to, text string) error
	PushConfirmCard(ctx context.Context, to string, parsed domain.ParsedInput) error
	PushModeCard(ctx context.Context, to string) error
	PushComparisonCard(ctx context.Context, to string, rows []ComparisonRow) error
	PushActionsCard(ctx context.Context, to string, actions []string) error
}

// QuoteFlow drives the multi-turn quote conversation.
type QuoteFlow interface {
	// HandleTrigger starts (or restarts) a session. Returns false when the
	// context's profile refuses the flow.
	HandleTrigger(ctx context.Context, userID, groupID string) (bool, error)
	// HandleMessage routes one inbound message through the active session.
	// Returns false when there is no active session for the requester.
	HandleMessage(ctx context.Context, userID, groupID, text string) (bool, error)
}

type quoteFlow struct {
	log      *logger.Logger
	store    SessionStore
	parser   InputParser
	rates    RateService
	profiles *ProfileRegistry
	msgr     QuoteMessenger

	// Background execution indirection; tests swap this for a synchronous
	// runner.
	runAsync func(fn func())
}

func NewQuoteFlow(log *logger.Logger, store SessionStore, parser InputParser,
	rates RateService, profiles *ProfileRegistry, msgr QuoteMessenger) QuoteFlow {
	return &quoteFlow{
		log:      log.With("service", "QuoteFlow"),
		store:    store,
		parser:   parser,
		rates:    rates,
		profiles: profiles,
		msgr:     msgr,
		runAsync: func(fn func()) { go fn() },
	}
}

func (f *quoteFlow) HandleTrigger(ctx context.Context, userID, groupID string) (bool, error) {
	profile := f.profiles.Resolve(groupID, userID)
	if profile == nil {
		f.log.Debug("quote trigger refused", "user_id", userID, "group_id", groupID)
		return false, nil
	}

	// The push target is fixed here and never re-derived mid-flow.
	target := groupID
	if target == "" {
		target = userID
	}

	if err := f.store.Clear(ctx, userID); err != nil {
		return true, err
	}
	if err := f.store.SetState(ctx, userID, StateCollecting); err != nil {
		return true, err
	}
	if err := f.store.SetTarget(ctx, userID, target); err != nil {
		return true, err
	}

	return true, f.msgr.PushText(ctx, target, promptStart)
}

func (f *quoteFlow) HandleMessage(ctx context.Context, userID, groupID, text string) (bool, error) {
	state, err := f.store.State(ctx, userID)
	if err != nil {
		return false, err
	}
	if state == "" {
		return false, nil
	}

	profile := f.profiles.Resolve(groupID, userID)
	if profile == nil {
		return false, nil
	}

	target, err := f.store.Target(ctx, userID)
	if err != nil {
		return true, err
	}
	if target == "" {
		target = userID
	}

	if text == CmdCancel {
		if err := f.store.Clear(ctx, userID); err != nil {
			return true, err
		}
		return true, f.msgr.PushText(ctx, target, promptCancelled)
	}

	switch state {
	case StateCollecting:
		return true, f.onCollecting(ctx, userID, target, text)

	case StateParsed:
		switch text {
		case CmdConfirm:
			return true, f.onConfirmed(ctx, userID, target, profile)
		case CmdReject:
			return true, f.onRejected(ctx, userID, target)
		case CmdRetry:
			if err := f.store.Clear(ctx, userID); err != nil {
				return true, err
			}
			if err := f.store.SetState(ctx, userID, StateCollecting); err != nil {
				return true, err
			}
			if err := f.store.SetTarget(ctx, userID, target); err != nil {
				return true, err
			}
			return true, f.msgr.PushText(ctx, target, "Data cleared, enter the package details again.")
		default:
			// Anything else is additional input: accumulate and reparse.
			return true, f.onCollecting(ctx, userID, target, text)
		}

	case StateCorrecting:
		return true, f.onCorrecting(ctx, userID, target, text)

	case StateChoosingMode:
		switch text {
		case CmdAir:
			return true, f.startComputation(ctx, userID, target, profile, domain.ModeAir)
		case CmdSea:
			return true, f.startComputation(ctx, userID, target, profile, domain.ModeSea)
		default:
			return true, f.msgr.PushText(ctx, target, promptPickMode)
		}
	}

	f.log.Warn("session in unknown state", "user_id", userID, "state", state)
	return false, nil
}

func (f *quoteFlow) onCollecting(ctx context.Context, userID, target, text string) error {
	buf, err := f.store.AppendBuffer(ctx, userID, text)
	if err != nil {
		return err
	}

	parsed := f.parser.Parse(ctx, buf)
	if parsed == nil || len(parsed.Packages) == 0 {
		return f.msgr.PushText(ctx, target, promptIncomplete)
	}

	if err := f.store.SetData(ctx, userID, parsed); err != nil {
		return err
	}
	if err := f.store.SetState(ctx, userID, StateParsed); err != nil {
		return err
	}
	return f.msgr.PushConfirmCard(ctx, target, *parsed)
}

func (f *quoteFlow) onConfirmed(ctx context.Context, userID, target string, profile *QuoteProfile) error {
	data, err := f.store.Data(ctx, userID)
	if err != nil {
		return err
	}
	if data == nil || len(data.Packages) == 0 {
		if err := f.store.Clear(ctx, userID); err != nil {
			return err
		}
		return f.msgr.PushText(ctx, target, promptDataLost)
	}

	switch {
	case len(data.PostalCodes) == 0:
		if err := f.store.SetState(ctx, userID, StateCollecting); err != nil {
			return err
		}
		return f.msgr.PushText(ctx, target, promptNeedPostal)

	case len(data.PostalCodes) >= 2:
		// Two postal codes: domestic-only, no mode prompt.
		return f.startComputation(ctx, userID, target, profile, domain.ModeDomestic)

	default:
		if profile.ForcedMode != "" {
			return f.startComputation(ctx, userID, target, profile, profile.ForcedMode)
		}
		if err := f.store.SetState(ctx, userID, StateChoosingMode); err != nil {
			return err
		}
		return f.msgr.PushModeCard(ctx, target)
	}
}

func (f *quoteFlow) onRejected(ctx context.Context, userID, target string) error {
	if err := f.store.SetState(ctx, userID, StateCorrecting); err != nil {
		return err
	}
	if err := f.store.SetBuffer(ctx, userID, ""); err != nil {
		return err
	}
	return f.msgr.PushText(ctx, target, promptCorrecting)
}

func (f *quoteFlow) onCorrecting(ctx context.Context, userID, target, text string) error {
	parsed := f.parser.Parse(ctx, text)
	if parsed == nil || len(parsed.Packages) == 0 {
		return f.msgr.PushText(ctx, target, promptBadCorrection)
	}

	// A correction that omits postal codes keeps the previously captured ones.
	if len(parsed.PostalCodes) == 0 {
		if old, err := f.store.Data(ctx, userID); err == nil && old != nil {
			parsed.PostalCodes = old.PostalCodes
		}
	}

	if err := f.store.SetData(ctx, userID, parsed); err != nil {
		return err
	}
	if err := f.store.SetState(ctx, userID, StateParsed); err != nil {
		return err
	}
	if err := f.store.SetBuffer(ctx, userID, text); err != nil {
		return err
	}
	return f.msgr.PushConfirmCard(ctx, target, *parsed)
}

// startComputation resolves the route, clears the session so a fresh
// conversation can start immediately, and hands the heavy lifting to a
// background unit. An in-flight computation is not cancellable and will
// still deliver after the clear.
func (f *quoteFlow) startComputation(ctx context.Context, userID, target string, profile *QuoteProfile, mode domain.Mode) error {
	data, err := f.store.Data(ctx, userID)
	if err != nil {
		return err
	}
	if data == nil || len(data.Packages) == 0 || len(data.PostalCodes) == 0 {
		if err := f.store.Clear(ctx, userID); err != nil {
			return err
		}
		return f.msgr.PushText(ctx, target, promptDataLost)
	}

	fromPostal := data.PostalCodes[0]
	toPostal := WarehousePostal
	if mode == domain.ModeDomestic {
		if len(data.PostalCodes) < 2 {
			if err := f.store.Clear(ctx, userID); err != nil {
				return err
			}
			return f.msgr.PushText(ctx, target, promptNeedPostal)
		}
		toPostal = data.PostalCodes[1]
	}

	packages := data.Packages

	if err := f.store.Clear(ctx, userID); err != nil {
		return err
	}
	if err := f.msgr.PushText(ctx, target, promptComputing); err != nil {
		f.log.Warn("computation announcement failed", "user_id", userID, "error", err)
	}

	jobID := uuid.NewString()
	f.log.Info("quote computation started",
		"job_id", jobID, "user_id", userID, "target", target, "mode", mode, "boxes", len(packages))

	f.runAsync(func() {
		f.computeAndDeliver(context.Background(), jobID, target, profile, mode, fromPostal, toPostal, packages)
	})
	return nil
}

func (f *quoteFlow) computeAndDeliver(ctx context.Context, jobID, target string, profile *QuoteProfile,
	mode domain.Mode, fromPostal, toPostal string, packages []domain.Package) {

	ctx, span := flowTracer.Start(ctx, "quoteflow.computeAndDeliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote.job_id", jobID),
		attribute.String("quote.mode", string(mode)),
		attribute.Int("quote.packages", len(packages)),
	)

	defer func() {
		if r := recover(); r != nil {
			f.log.Error("quote computation panic", "job_id", jobID, "panic", fmt.Sprint(r))
			_ = f.msgr.PushText(ctx, target, promptQuoteError)
		}
	}()

	quotes := f.rates.Aggregate(ctx, fromPostal, toPostal, packages)
	if len(quotes) == 0 {
		f.log.Warn("no quotes available", "job_id", jobID, "from", fromPostal, "to", toPostal)
		_ = f.msgr.PushText(ctx, target, promptNoQuotes)
		return
	}

	selected := pickService(quotes, profile.ForcedService)
	boxWeights := CalculateBoxWeights(packages, mode)
	breakdown := BuildCostBreakdown(mode, fromPostal, toPostal, boxWeights, selected)

	for _, to := range resolveTargets(target, profile.ShowCostInGroup, profile.CostPushTarget) {
		if err := f.msgr.PushText(ctx, to, breakdown.Render()); err != nil {
			f.log.Error("cost breakdown delivery failed", "job_id", jobID, "target", to, "error", err)
		}
	}

	rows := buildComparison(quotes, selected)
	for _, to := range resolveTargets(target, profile.ShowResultInGroup, profile.ResultPushTarget) {
		if err := f.msgr.PushComparisonCard(ctx, to, rows); err != nil {
			f.log.Error("comparison delivery failed", "job_id", jobID, "target", to, "error", err)
		}
	}

	if len(profile.PostQuoteActions) > 0 {
		if err := f.msgr.PushActionsCard(ctx, target, profile.PostQuoteActions); err != nil {
			f.log.Error("actions card delivery failed", "job_id", jobID, "error", err)
		}
	}

	f.log.Info("quote delivered",
		"job_id", jobID, "service", selected.Label(), "total", breakdown.GrandTotal, "quotes", len(quotes))
}

// pickService prefers the profile's forced service (substring match on the
// service name) and falls back to the cheapest quote.
func pickService(sorted []domain.ServiceQuote, forced string) domain.ServiceQuote {
	if forced != "" {
		for _, q := range sorted {
			if strings.Contains(strings.ToLower(q.Name), strings.ToLower(forced)) {
				return q
			}
		}
	}
	return sorted[0]
}

func buildComparison(sorted []domain.ServiceQuote, selected domain.ServiceQuote) []ComparisonRow {
	limit := len(sorted)
	if limit > comparisonLimit {
		limit = comparisonLimit
	}
	rows := make([]ComparisonRow, 0, limit)
	for _, q := range sorted[:limit] {
		rows = append(rows, ComparisonRow{
			Quote:    q,
			Selected: q.Carrier == selected.Carrier && q.Name == selected.Name,
			Warn:     IsWarnService(q.Name),
		})
	}
	return rows
}

// resolveTargets collects delivery targets for one message shape: the
// session target when visible there, plus the profile's redirect.
func resolveTargets(sessionTarget string, showInGroup bool, redirect string) []string {
	var targets []string
	if showInGroup {
		targets = append(targets, sessionTarget)
	}
	if redirect != "" && redirect != sessionTarget {
		targets = append(targets, redirect)
	}
	return targets
}
