package arbitrage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/internal/crossrate"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// Storage mirrors ended arbitrages to durable storage.
type Storage interface {
	StoreArbitrage(ctx context.Context, arb *Arbitrage) error
}

type orderBookKey struct {
	Source    string
	AssetPair types.AssetPair
}

type historyEntry struct {
	arb *Arbitrage
	seq uint64
}

// Detector owns the order-book, cross-rate, active-arbitrage and history
// stores and runs the periodic detection cycle over them.
type Detector struct {
	config   Config
	logger   *zap.Logger
	settings *settings.Service
	storage  Storage
	now      func() time.Time

	orderBooks *xsync.MapOf[orderBookKey, *types.OrderBook]
	crossRates *xsync.MapOf[crossrate.Key, *crossrate.SynthOrderBook]
	arbitrages *xsync.MapOf[string, *Arbitrage]
	history    *xsync.MapOf[string, historyEntry]

	historySeq    atomic.Uint64
	restartNeeded atomic.Bool
	cycles        atomic.Uint64

	endedChan    chan *Arbitrage
	cancelCycle  context.CancelFunc
	cancelMirror context.CancelFunc
	cycleWG      sync.WaitGroup
	mirrorWG     sync.WaitGroup
}

// Config holds detector configuration.
type Config struct {
	Settings *settings.Service
	// Storage receives ended arbitrages. Optional.
	Storage            Storage
	SlowCycleThreshold time.Duration
	MirrorBufferSize   int
	Logger             *zap.Logger
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// New creates a new detector.
func New(cfg Config) *Detector {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SlowCycleThreshold <= 0 {
		cfg.SlowCycleThreshold = time.Second
	}
	if cfg.MirrorBufferSize <= 0 {
		cfg.MirrorBufferSize = 1000
	}
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Detector{
		config:     cfg,
		logger:     cfg.Logger,
		settings:   cfg.Settings,
		storage:    cfg.Storage,
		now:        now,
		orderBooks: xsync.NewMapOf[orderBookKey, *types.OrderBook](),
		crossRates: xsync.NewMapOf[crossrate.Key, *crossrate.SynthOrderBook](),
		arbitrages: xsync.NewMapOf[string, *Arbitrage](),
		history:    xsync.NewMapOf[string, historyEntry](),
		endedChan:  make(chan *Arbitrage, cfg.MirrorBufferSize),
	}
}

// Start runs the detection cycle and the history mirror until Close.
func (d *Detector) Start(ctx context.Context) error {
	cycleCtx, cancelCycle := context.WithCancel(ctx)
	mirrorCtx, cancelMirror := context.WithCancel(ctx)
	d.cancelCycle = cancelCycle
	d.cancelMirror = cancelMirror

	s := d.settings.Get()
	d.logger.Info("arbitrage-detector-starting",
		zap.Strings("base-assets", s.BaseAssets),
		zap.String("quote-asset", s.QuoteAsset),
		zap.Duration("execution-delay", s.ExecutionDelay()),
		zap.Duration("expiration", s.Expiration()))

	d.cycleWG.Add(1)
	go d.cycleLoop(cycleCtx)
	d.mirrorWG.Add(1)
	go d.mirrorLoop(mirrorCtx)

	return nil
}

// cycleLoop runs cycles back to back separated by the current execution
// delay. A running cycle always completes before shutdown.
func (d *Detector) cycleLoop(ctx context.Context) {
	defer d.cycleWG.Done()

	timer := time.NewTimer(d.settings.Get().ExecutionDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("arbitrage-detector-stopping")
			return
		case <-timer.C:
			d.Execute()
			timer.Reset(d.settings.Get().ExecutionDelay())
		}
	}
}

// Execute runs one detection cycle.
func (d *Detector) Execute() {
	start := time.Now()
	now := d.now()
	s := d.settings.Get()

	d.calculateCrossRates(s, now)
	d.refreshArbitrages(s, now)
	d.restartIfNeeded()
	d.cycles.Add(1)

	elapsed := time.Since(start)
	CycleDurationSeconds.Observe(elapsed.Seconds())
	StoreSize.WithLabelValues("orderbooks").Set(float64(d.orderBooks.Size()))
	StoreSize.WithLabelValues("crossrates").Set(float64(d.crossRates.Size()))
	StoreSize.WithLabelValues("arbitrages").Set(float64(d.arbitrages.Size()))
	StoreSize.WithLabelValues("history").Set(float64(d.history.Size()))

	if elapsed > d.config.SlowCycleThreshold {
		d.logger.Warn("cycle-slow",
			zap.Duration("elapsed", elapsed),
			zap.Int("orderbooks", d.orderBooks.Size()),
			zap.Int("crossrates", d.crossRates.Size()),
			zap.Int("arbitrages", d.arbitrages.Size()))
	}
}

// Cycles returns the number of completed cycles.
func (d *Detector) Cycles() uint64 {
	return d.cycles.Load()
}

// Process stores a feed order book under every configured asset it
// contains. Irrelevant books are dropped silently.
func (d *Detector) Process(ob *types.OrderBook) {
	if ob == nil {
		return
	}

	s := d.settings.Snapshot()
	if !s.AllowsExchange(ob.Source) {
		OrderBooksDroppedTotal.WithLabelValues("exchange").Inc()
		return
	}

	instrument := strings.ToUpper(ob.Instrument)
	stored := d.storeFor(ob, instrument, s.QuoteAsset)
	for _, asset := range s.BaseAssets {
		if d.storeFor(ob, instrument, asset) {
			stored = true
		}
	}

	if !stored {
		OrderBooksDroppedTotal.WithLabelValues("irrelevant").Inc()
		return
	}
	OrderBooksProcessedTotal.Inc()
}

// storeFor upserts ob relabeled with the pair it forms around asset.
func (d *Detector) storeFor(ob *types.OrderBook, instrument, asset string) bool {
	if asset == "" || !strings.Contains(instrument, asset) {
		return false
	}
	pair, err := types.ParseAssetPair(ob.Instrument, asset)
	if err != nil {
		return false
	}

	d.orderBooks.Store(orderBookKey{Source: ob.Source, AssetPair: pair}, ob.WithAssetPair(pair))

	return true
}

func (d *Detector) calculateCrossRates(s settings.Settings, now time.Time) {
	books := d.actualOrderBooks(now, s.Expiration())

	rates := crossrate.Calculate(books, crossrate.Params{
		WantedAssets:       s.BaseAssets,
		IntermediateAssets: s.IntermediateAssets,
		QuoteAsset:         s.QuoteAsset,
	})
	for _, r := range rates {
		d.crossRates.Store(r.Key(), r)
	}
}

// refreshArbitrages reconciles this cycle's crossings with the active set.
// Occurrences are keyed by conversion path and PnL, so an unchanged key
// keeps its StartedAt and a changed PnL ends the old occurrence.
func (d *Detector) refreshArbitrages(s settings.Settings, now time.Time) {
	found := Detect(d.actualCrossRates(now, s.Expiration()), Thresholds{
		MinSpread:     s.MinSpread,
		MinimumPnL:    s.MinimumPnL,
		MinimumVolume: s.MinimumVolume,
	}, now)

	fresh := make(map[string]*Arbitrage, len(found))
	for _, a := range found {
		if _, exists := fresh[a.Key()]; !exists {
			fresh[a.Key()] = a
		}
	}

	d.arbitrages.Range(func(key string, active *Arbitrage) bool {
		if _, ok := fresh[key]; ok {
			return true
		}

		ended := active.End(now)
		d.arbitrages.Delete(key)
		d.history.Store(key, historyEntry{arb: ended, seq: d.historySeq.Add(1)})
		ArbitragesEndedTotal.Inc()
		d.mirror(ended)

		return true
	})

	for key, a := range fresh {
		if _, loaded := d.arbitrages.LoadOrStore(key, a); !loaded {
			ArbitragesStartedTotal.Inc()
			d.logger.Debug("arbitrage-started",
				zap.String("conversion-path", a.ConversionPath()),
				zap.String("pnl", a.PnL.String()),
				zap.String("spread", a.Spread.StringFixed(4)))
		}
	}

	d.cleanHistory(s.HistoryMaxSize)
}

// cleanHistory bounds the history store. The first pass keeps only the
// highest-PnL entry per conversion path; if that is not enough the oldest
// remaining entries are removed.
func (d *Detector) cleanHistory(maxSize int) {
	if maxSize < 0 || d.history.Size() <= maxSize {
		return
	}

	type keyed struct {
		key   string
		entry historyEntry
	}

	best := make(map[string]keyed)
	var all []keyed
	d.history.Range(func(key string, e historyEntry) bool {
		all = append(all, keyed{key: key, entry: e})
		return true
	})

	for _, k := range all {
		path := k.entry.arb.ConversionPath()
		cur, ok := best[path]
		if !ok || k.entry.arb.PnL.GreaterThan(cur.entry.arb.PnL) ||
			(k.entry.arb.PnL.Equal(cur.entry.arb.PnL) && k.entry.seq > cur.entry.seq) {
			best[path] = k
		}
	}

	remaining := make([]keyed, 0, len(best))
	for _, k := range all {
		if best[k.entry.arb.ConversionPath()].key == k.key {
			remaining = append(remaining, k)
			continue
		}
		d.history.Delete(k.key)
		HistoryEvictedTotal.WithLabelValues("best-per-path").Inc()
	}

	extra := len(remaining) - maxSize
	if extra <= 0 {
		return
	}

	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].entry.seq < remaining[j].entry.seq
	})
	for _, k := range remaining[:extra] {
		d.history.Delete(k.key)
		HistoryEvictedTotal.WithLabelValues("oldest").Inc()
	}
}

func (d *Detector) restartIfNeeded() {
	if !d.restartNeeded.CompareAndSwap(true, false) {
		return
	}

	d.crossRates.Clear()
	d.arbitrages.Clear()
	d.history.Clear()
	RestartsTotal.Inc()
	d.logger.Info("arbitrage-detector-restarted")
}

// mirror hands an ended arbitrage to the storage writer without blocking.
func (d *Detector) mirror(arb *Arbitrage) {
	if d.storage == nil {
		return
	}

	select {
	case d.endedChan <- arb:
	default:
		MirrorDroppedTotal.Inc()
		d.logger.Warn("arbitrage-mirror-full", zap.String("conversion-path", arb.ConversionPath()))
	}
}

// mirrorLoop persists ended arbitrages. Once ctx is done it drains what is
// left; Close cancels it only after the cycle loop has exited.
func (d *Detector) mirrorLoop(ctx context.Context) {
	defer d.mirrorWG.Done()

	for {
		select {
		case arb := <-d.endedChan:
			d.store(ctx, arb)
		case <-ctx.Done():
			d.drainMirror(context.WithoutCancel(ctx))
			return
		}
	}
}

func (d *Detector) drainMirror(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for {
		select {
		case arb := <-d.endedChan:
			d.store(ctx, arb)
		default:
			return
		}
	}
}

func (d *Detector) store(ctx context.Context, arb *Arbitrage) {
	if d.storage == nil {
		return
	}
	if err := d.storage.StoreArbitrage(ctx, arb); err != nil {
		MirrorErrorsTotal.Inc()
		d.logger.Warn("arbitrage-store-failed",
			zap.String("conversion-path", arb.ConversionPath()),
			zap.Error(err))
	}
}

// SetSettings validates and applies update. A change of the expiration
// window, the base assets or the quote asset resets the cross-rate,
// arbitrage and history stores at the end of the next cycle.
func (d *Detector) SetSettings(ctx context.Context, update *settings.Settings) error {
	restart, err := d.settings.Set(ctx, update)
	if err != nil {
		return fmt.Errorf("set settings: %w", err)
	}
	if restart {
		d.restartNeeded.Store(true)
	}

	return nil
}

// GetSettings returns a copy of the current settings.
func (d *Detector) GetSettings() settings.Settings {
	return d.settings.Get()
}

// Close stops the cycle after the running one completes, then flushes
// every arbitrage that cycle ended to storage.
func (d *Detector) Close() error {
	if d.cancelCycle != nil {
		d.cancelCycle()
	}
	d.cycleWG.Wait()

	if d.cancelMirror != nil {
		d.cancelMirror()
	}
	d.mirrorWG.Wait()
	d.logger.Info("arbitrage-detector-closed")

	return nil
}
