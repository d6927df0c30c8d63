package cowswap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/kjannette/evm-agent/internal/ethereum"
	"github.com/kjannette/evm-agent/internal/logging"
	"github.com/kjannette/evm-agent/internal/metrics"
	"github.com/kjannette/evm-agent/internal/notifications"
	"github.com/kjannette/evm-agent/internal/signreq"
)

var ErrUnsupportedAsset = errors.New("This agent does not currently support Native Asset Sell Orders.")

// Step names a state of the swap flow.
type Step string

const (
	StepRejectNative   Step = "RejectNative"
	StepQuote          Step = "Quote"
	StepAdjustFee      Step = "AdjustFee"
	StepAppData        Step = "AppData"
	StepBuildOrder     Step = "BuildOrder"
	StepSubmit         Step = "Submit"
	StepCheckAllowance Step = "CheckAllowance"
	StepApproval       Step = "Approval"
	StepBuildPresign   Step = "BuildPresign"
	StepAssemble       Step = "Assemble"
	stepDone           Step = ""
)

// StepError records which step aborted the flow. Its message is the
// underlying error's so callers can show it unchanged.
type StepError struct {
	Step Step
	// OrderUID is set when the order had already been posted.
	OrderUID string
	Err      error
}

func (e *StepError) Error() string { return e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }

type Meta struct {
	OrderURL string `json:"orderUrl"`
}

// Result is the sign request for the wallet plus a link to the posted order.
type Result struct {
	signreq.SignRequest
	Meta Meta `json:"meta"`
}

func (r *Result) UnmarshalJSON(b []byte) error {
	if err := r.SignRequest.UnmarshalJSON(b); err != nil {
		return err
	}
	var m struct {
		Meta Meta `json:"meta"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.Meta = m.Meta
	return nil
}

// BookSource yields the order book for a chain.
type BookSource interface {
	Book(chainID int64) (OrderBook, error)
}

// ReaderSource yields an on-chain reader for a chain.
type ReaderSource interface {
	Reader(ctx context.Context, chainID int64) (*ethereum.Reader, error)
}

type Notifier interface {
	NotifyOrder(o notifications.OrderPosted)
}

type FlowOptions struct {
	AppData  AppData
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// Flow drives quote -> order -> presign for smart-account sellers.
type Flow struct {
	books    BookSource
	readers  ReaderSource
	appData  AppData
	notifier Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewFlow(books BookSource, readers ReaderSource, opts FlowOptions) *Flow {
	return &Flow{
		books:    books,
		readers:  readers,
		appData:  opts.AppData,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logging.Component("cowswap"),
	}
}

// run carries everything one flow execution accumulates.
type run struct {
	req      ParsedQuoteRequest
	book     OrderBook
	quote    QuoteResponse
	order    Order
	uid      string
	approval *ethereum.MetaTransaction
	txs      []ethereum.MetaTransaction
	result   Result
	logger   zerolog.Logger
}

type stepFunc func(ctx context.Context, r *run) (Step, error)

func (f *Flow) steps() map[Step]stepFunc {
	return map[Step]stepFunc{
		StepRejectNative:   f.rejectNative,
		StepQuote:          f.requestQuote,
		StepAdjustFee:      f.adjustFee,
		StepAppData:        f.attachAppData,
		StepBuildOrder:     f.buildOrder,
		StepSubmit:         f.submit,
		StepCheckAllowance: f.checkAllowance,
		StepApproval:       f.addApproval,
		StepBuildPresign:   f.buildPresign,
		StepAssemble:       f.assemble,
	}
}

// Run executes the flow. Steps after Submit can fail with the order already
// in the book; the returned *StepError then carries its uid. Nothing is
// rolled back: an unsigned presign order simply expires.
func (f *Flow) Run(ctx context.Context, req ParsedQuoteRequest) (Result, error) {
	r := &run{
		req:    req,
		logger: f.logger.With().Int64("chainId", req.ChainID).Logger(),
	}
	steps := f.steps()

	for step := StepRejectNative; step != stepDone; {
		next, err := steps[step](ctx, r)
		if err != nil {
			f.metrics.RecordFlowFailure(string(step))
			ev := r.logger.Error().Err(err).Str("step", string(step))
			if r.uid != "" {
				ev = ev.Str("orderUid", r.uid)
			}
			ev.Msg("swap flow aborted")
			return Result{}, &StepError{Step: step, OrderUID: r.uid, Err: err}
		}
		step = next
	}
	return r.result, nil
}

func (f *Flow) rejectNative(_ context.Context, r *run) (Step, error) {
	if IsNativeAsset(r.req.Quote.SellToken.Hex()) {
		return stepDone, ErrUnsupportedAsset
	}
	book, err := f.books.Book(r.req.ChainID)
	if err != nil {
		return stepDone, err
	}
	r.book = book
	return StepQuote, nil
}

func (f *Flow) requestQuote(ctx context.Context, r *run) (Step, error) {
	q := r.req.Quote
	q.Kind = KindSell
	q.SigningScheme = SchemePresign
	r.logger.Info().
		Str("sellToken", q.SellToken.Hex()).
		Str("buyToken", q.BuyToken.Hex()).
		Str("sellAmountBeforeFee", q.SellAmountBeforeFee).
		Msg("requesting quote")

	resp, err := r.book.Quote(ctx, q)
	if err != nil {
		return stepDone, err
	}
	r.quote = resp
	r.logger.Debug().Int64("quoteId", resp.ID).Str("buyAmount", resp.Quote.BuyAmount).Msg("quote received")
	return StepAdjustFee, nil
}

func (f *Flow) adjustFee(_ context.Context, r *run) (Step, error) {
	q, err := AdjustForFee(r.quote.Quote)
	if err != nil {
		return stepDone, err
	}
	r.quote.Quote = q
	return StepAppData, nil
}

func (f *Flow) attachAppData(ctx context.Context, r *run) (Step, error) {
	if !f.appData.Enabled() {
		return StepBuildOrder, nil
	}
	doc, hash, err := f.appData.Document()
	if err != nil {
		return stepDone, err
	}
	if err := r.book.UploadAppData(ctx, hash, doc); err != nil {
		return stepDone, err
	}
	r.quote.Quote.AppData = hash.Hex()
	return StepBuildOrder, nil
}

func (f *Flow) buildOrder(_ context.Context, r *run) (Step, error) {
	r.order = CreateOrder(r.quote, r.req.Quote.From)
	return StepSubmit, nil
}

func (f *Flow) submit(ctx context.Context, r *run) (Step, error) {
	uid, err := r.book.SendOrder(ctx, r.order)
	if err != nil {
		return stepDone, err
	}
	r.uid = uid
	f.metrics.RecordOrderPosted(r.req.ChainID)
	r.logger.Info().Str("orderUid", uid).Str("link", r.book.OrderLink(uid)).Msg("order posted")
	return StepCheckAllowance, nil
}

func (f *Flow) checkAllowance(ctx context.Context, r *run) (Step, error) {
	sellAmount, ok := new(big.Int).SetString(r.order.SellAmount, 10)
	if !ok {
		return stepDone, fmt.Errorf("order sellAmount %q is not an integer", r.order.SellAmount)
	}
	reader, err := f.readers.Reader(ctx, r.req.ChainID)
	if err != nil {
		return stepDone, err
	}
	approval, err := SellTokenApprovalTx(ctx, reader, r.order.From, r.order.SellToken, sellAmount)
	if err != nil {
		return stepDone, err
	}
	if approval == nil {
		return StepBuildPresign, nil
	}
	r.logger.Info().
		Str("sellToken", r.order.SellToken.Hex()).
		Str("needed", ethereum.FormatUnits(sellAmount, r.req.SellDecimals)).
		Msg("insufficient allowance, adding approval")
	r.approval = approval
	return StepApproval, nil
}

func (f *Flow) addApproval(_ context.Context, r *run) (Step, error) {
	f.metrics.RecordApproval(r.req.ChainID)
	r.txs = append(r.txs, *r.approval)
	return StepBuildPresign, nil
}

func (f *Flow) buildPresign(_ context.Context, r *run) (Step, error) {
	tx, err := SetPresignatureTx(r.uid)
	if err != nil {
		return stepDone, err
	}
	r.txs = append(r.txs, tx)
	return StepAssemble, nil
}

func (f *Flow) assemble(_ context.Context, r *run) (Step, error) {
	link := r.book.OrderLink(r.uid)
	r.result = Result{
		SignRequest: signreq.ForTransactions(r.req.ChainID, r.txs),
		Meta:        Meta{OrderURL: link},
	}
	if f.notifier != nil {
		notice := notifications.OrderPosted{
			ChainID:       r.req.ChainID,
			UID:           r.uid,
			Link:          link,
			SellToken:     r.req.SellSymbol,
			BuyToken:      r.req.BuySymbol,
			SellAmount:    r.req.SellAmount,
			NeedsApproval: r.approval != nil,
		}
		go f.notifier.NotifyOrder(notice)
	}
	return stepDone, nil
}
