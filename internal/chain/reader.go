package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// Options parameterise the chain reader.
type Options struct {
	RPCURL  string
	WSURL   string
	Timeout time.Duration

	// ReserveUSDRate prices one reserve token in USD when a pool does not
	// override it. Zero falls back to 1.
	ReserveUSDRate decimal.Decimal
}

// Reader fetches pool snapshots via Ethereum RPC. Contract immutables are
// fetched once per pool and cached for the process lifetime.
type Reader struct {
	opts      Options
	logger    zerolog.Logger
	client    *ethclient.Client
	wsClient  *ethclient.Client
	clientMux sync.Mutex

	paramsMux sync.Mutex
	params    map[string]state.ImmutableParams
}

// NewReader builds a reader. Clients are dialed lazily on first use.
func NewReader(opts Options, logger zerolog.Logger) *Reader {
	return &Reader{
		opts:   opts,
		logger: logger.With().Str("component", "chain_reader").Logger(),
		params: make(map[string]state.ImmutableParams),
	}
}

// FetchSnapshot reads the pool's full state at the current chain head.
// Every view call is pinned to the same block so the snapshot is
// internally consistent.
func (r *Reader) FetchSnapshot(ctx context.Context, pool PoolRef) (*state.Snapshot, error) {
	return r.fetch(ctx, pool, nil)
}

// FetchSnapshotAt reads the pool's state at a specific historical block.
func (r *Reader) FetchSnapshotAt(ctx context.Context, pool PoolRef, height uint64) (*state.Snapshot, error) {
	return r.fetch(ctx, pool, new(big.Int).SetUint64(height))
}

// LatestHeight returns the current chain head number.
func (r *Reader) LatestHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	client, err := r.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

func (r *Reader) fetch(ctx context.Context, pool PoolRef, height *big.Int) (*state.Snapshot, error) {
	if r.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}
	if pool.Address == "" {
		return nil, fmt.Errorf("pool %s: contract address not configured", pool.Name)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}

	header, err := client.HeaderByNumber(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("fetch header: %w", err)
	}
	block := header.Number

	params, err := r.immutableParams(ctx, client, pool, block)
	if err != nil {
		return nil, err
	}

	addr := common.HexToAddress(pool.Address)

	var (
		wg       sync.WaitGroup
		mux      sync.Mutex
		firstErr error

		reserve, spot, supply, fees *big.Int
		crrPPM                      uint32
		isPaused                    bool
		phaseRaw                    uint8
	)
	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mux.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mux.Unlock()
			}
		}()
	}

	run(func() (err error) { reserve, err = callBig(ctx, client, addr, "reserveBalance", block); return })
	run(func() (err error) { spot, err = callBig(ctx, client, addr, "spotPrice", block); return })
	run(func() (err error) { supply, err = callBig(ctx, client, addr, "totalSupply", block); return })
	run(func() (err error) { fees, err = callBig(ctx, client, addr, "treasuryFees", block); return })
	run(func() (err error) { crrPPM, err = callUint32(ctx, client, addr, "crr", block); return })
	run(func() (err error) { isPaused, err = callBool(ctx, client, addr, "paused", block); return })
	run(func() (err error) { phaseRaw, err = callUint8(ctx, client, addr, "getCurrentPhase", block); return })
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.Name, firstErr)
	}

	phase, err := state.PhaseFromChain(phaseRaw)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.Name, err)
	}

	rate := pool.ReserveUSDRate
	if !rate.IsPositive() {
		rate = r.opts.ReserveUSDRate
	}

	return state.NewSnapshot(state.SnapshotInput{
		Pool:           pool.Name,
		Address:        pool.Address,
		Timestamp:      time.Unix(int64(header.Time), 0).UTC(),
		BlockHeight:    block.Uint64(),
		ReserveBalance: reserve,
		SpotPrice:      spot,
		TokenSupply:    supply,
		TreasuryFees:   fees,
		CRRPPM:         uint64(crrPPM),
		Paused:         isPaused,
		Phase:          phase,
		Params:         params,
		ReserveUSDRate: rate,
	}), nil
}

func (r *Reader) immutableParams(ctx context.Context, client *ethclient.Client, pool PoolRef, block *big.Int) (state.ImmutableParams, error) {
	r.paramsMux.Lock()
	if p, ok := r.params[pool.Address]; ok {
		r.paramsMux.Unlock()
		return p, nil
	}
	r.paramsMux.Unlock()

	addr := common.HexToAddress(pool.Address)
	threshold, err := callBig(ctx, client, addr, "flatCurveThreshold", block)
	if err != nil {
		return state.ImmutableParams{}, fmt.Errorf("pool %s: %w", pool.Name, err)
	}
	price, err := callBig(ctx, client, addr, "flatCurvePrice", block)
	if err != nil {
		return state.ImmutableParams{}, fmt.Errorf("pool %s: %w", pool.Name, err)
	}

	p := state.ImmutableParams{FlatCurveThreshold: threshold, FlatCurvePrice: price}
	r.paramsMux.Lock()
	r.params[pool.Address] = p
	r.paramsMux.Unlock()

	r.logger.Debug().
		Str("pool", pool.Name).
		Str("threshold", threshold.String()).
		Str("flat_price", price.String()).
		Msg("缓存池不可变参数")
	return p, nil
}

func (r *Reader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *Reader) getClient(ctx context.Context) (*ethclient.Client, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := ethclient.DialContext(ctx, r.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *Reader) getWSClient(ctx context.Context) (*ethclient.Client, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.wsClient != nil {
		return r.wsClient, nil
	}
	if r.opts.WSURL == "" {
		return nil, errors.New("ethereum websocket url not configured")
	}

	client, err := ethclient.DialContext(ctx, r.opts.WSURL)
	if err != nil {
		return nil, err
	}
	r.wsClient = client
	return client, nil
}

// Close tears down any dialed clients.
func (r *Reader) Close() {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
	if r.wsClient != nil {
		r.wsClient.Close()
		r.wsClient = nil
	}
}

func callView(ctx context.Context, client *ethclient.Client, addr common.Address, method string, block *big.Int) (any, error) {
	payload, err := curvePoolABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	outputs, err := curvePoolABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}
	return outputs[0], nil
}

func callBig(ctx context.Context, client *ethclient.Client, addr common.Address, method string, block *big.Int) (*big.Int, error) {
	out, err := callView(ctx, client, addr, method, block)
	if err != nil {
		return nil, err
	}
	v, ok := out.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s output", method)
	}
	return v, nil
}

func callUint32(ctx context.Context, client *ethclient.Client, addr common.Address, method string, block *big.Int) (uint32, error) {
	out, err := callView(ctx, client, addr, method, block)
	if err != nil {
		return 0, err
	}
	v, ok := out.(uint32)
	if !ok {
		return 0, fmt.Errorf("failed to decode %s output", method)
	}
	return v, nil
}

func callUint8(ctx context.Context, client *ethclient.Client, addr common.Address, method string, block *big.Int) (uint8, error) {
	out, err := callView(ctx, client, addr, method, block)
	if err != nil {
		return 0, err
	}
	v, ok := out.(uint8)
	if !ok {
		return 0, fmt.Errorf("failed to decode %s output", method)
	}
	return v, nil
}

func callBool(ctx context.Context, client *ethclient.Client, addr common.Address, method string, block *big.Int) (bool, error) {
	out, err := callView(ctx, client, addr, method, block)
	if err != nil {
		return false, err
	}
	v, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("failed to decode %s output", method)
	}
	return v, nil
}

var _ SnapshotReader = (*Reader)(nil)
