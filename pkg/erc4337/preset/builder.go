// Package preset wires the full user operation pipeline: sender resolution,
// gas estimation through the bundler, optional paymaster sponsorship, signing,
// submission with nonce retry, and on-chain confirmation.
package preset

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/SouravInsights/permissionless-go/core/chainio/aa"
	"github.com/SouravInsights/permissionless-go/core/chainio/aa/paymaster"
	"github.com/SouravInsights/permissionless-go/core/chainio/signer"
	"github.com/SouravInsights/permissionless-go/core/config"
	"github.com/SouravInsights/permissionless-go/metrics"
	"github.com/SouravInsights/permissionless-go/pkg/eip1559"
	"github.com/SouravInsights/permissionless-go/pkg/erc4337/bundler"
	"github.com/SouravInsights/permissionless-go/pkg/erc4337/userop"
	"github.com/SouravInsights/permissionless-go/pkg/logger"
	"github.com/SouravInsights/permissionless-go/storage"
)

var (
	// Fallback gas limits used when bundler estimation is unavailable. Based
	// on observed SimpleAccount execute costs on Sepolia and Base.
	defaultCallGasLimit         = big.NewInt(200000)
	defaultVerificationGasLimit = big.NewInt(1000000)
	defaultPreVerificationGas   = big.NewInt(50000)

	// Account deployment through the factory needs far more verification gas
	// than a plain operation: factory execution, proxy deployment, and owner
	// initialization all run inside validateUserOp.
	deploymentVerificationGasLimit = big.NewInt(3000000)

	// Content is irrelevant for estimation, only the length is checked.
	dummySigForGasEstimation = crypto.Keccak256Hash(common.FromHex("0xdead123"))

	accountSalt = big.NewInt(0)

	// topic0 of EntryPoint's UserOperationEvent
	userOpEventTopic0 = common.HexToHash("0x49628fd1471006c1482da88028e9ce4dbb080b815c9b0344d39e5a8e6ec1419f")

	maxSendAttempts = 3
)

// VerifyingPaymasterRequest asks for sponsorship within a validity window.
type VerifyingPaymasterRequest struct {
	PaymasterAddress common.Address
	ValidUntil       *big.Int
	ValidAfter       *big.Int
}

// GetVerifyingPaymasterRequestForDuration builds a request valid from now
// until now+duration. validAfter is skewed two minutes into the past to
// tolerate clock drift against the bundler.
func GetVerifyingPaymasterRequestForDuration(address common.Address, duration time.Duration) *VerifyingPaymasterRequest {
	const skewSeconds int64 = 120
	now := time.Now().Unix()

	return &VerifyingPaymasterRequest{
		PaymasterAddress: address,
		ValidUntil:       big.NewInt(now + int64(duration.Seconds())),
		ValidAfter:       big.NewInt(now - skewSeconds),
	}
}

// Sender owns the clients and state needed to push user operations through a
// bundler. It is safe for sequential reuse; the nonce manager keeps
// back-to-back sends from colliding.
type Sender struct {
	cfg      *config.Config
	client   *ethclient.Client
	wsClient *ethclient.Client
	bundler  *bundler.BundlerClient
	resolver *aa.SenderResolver
	nonces   *bundler.NonceManager
	journal  *storage.Journal
	logger   logger.Logger
	fees     eip1559.FeePolicy
}

// NewSender dials the node and bundler from cfg. journal may be nil when no
// persistence is wanted. The websocket client is optional; confirmation falls
// back to log polling without it.
func NewSender(cfg *config.Config, journal *storage.Journal) (*Sender, error) {
	client, err := ethclient.Dial(cfg.EthRpcUrl)
	if err != nil {
		return nil, fmt.Errorf("cannot dial eth rpc: %w", err)
	}

	bundlerClient, err := bundler.NewBundlerClient(cfg.BundlerURL)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("cannot dial bundler: %w", err)
	}

	resolver, err := aa.NewSenderResolver(client)
	if err != nil {
		client.Close()
		bundlerClient.Close()
		return nil, err
	}

	lgr := logger.EnsureLogger(cfg.Logger)

	var wsClient *ethclient.Client
	if cfg.EthWsUrl != "" {
		wsClient, err = ethclient.Dial(cfg.EthWsUrl)
		if err != nil {
			lgr.Warnf("websocket dial failed, confirmation will poll: %v", err)
			wsClient = nil
		}
	}

	return &Sender{
		cfg:      cfg,
		client:   client,
		wsClient: wsClient,
		bundler:  bundlerClient,
		resolver: resolver,
		nonces:   bundler.NewNonceManager(),
		journal:  journal,
		logger:   lgr,
		fees:     eip1559.DefaultFeePolicy(),
	}, nil
}

func (s *Sender) Close() {
	s.resolver.Close()
	s.bundler.Close()
	if s.wsClient != nil {
		s.wsClient.Close()
	}
	s.client.Close()
}

// Client exposes the underlying node connection for callers that need direct
// chain reads.
func (s *Sender) Client() *ethclient.Client {
	return s.client
}

// BuildUserOp assembles an unsigned operation for owner's smart wallet
// executing callData. initCode is attached when the wallet is not yet
// deployed.
func (s *Sender) BuildUserOp(ctx context.Context, owner common.Address, callData []byte) (*userop.UserOperation, error) {
	sender, err := s.resolver.Resolve(owner, accountSalt)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve smart wallet for %s: %w", owner.Hex(), err)
	}

	deployed, err := s.resolver.IsDeployed(ctx, sender)
	if err != nil {
		return nil, err
	}

	initCode := []byte{}
	verificationGas := verificationGasOr(deployed)
	if !deployed {
		hexCode, err := aa.GetInitCodeForFactory(owner.Hex(), s.cfg.FactoryAddress, accountSalt)
		if err != nil {
			return nil, err
		}
		initCode = common.FromHex(hexCode)
		s.logger.Infof("wallet %s not deployed, attaching initCode", sender.Hex())
	}

	maxFeePerGas, maxPriorityFeePerGas, err := s.fees.SuggestFee(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("cannot suggest gas fees: %w", err)
	}

	// keep at least 1 gwei of headroom over the tip
	minHeadroom := new(big.Int).Add(maxPriorityFeePerGas, big.NewInt(1_000_000_000))
	if maxFeePerGas.Cmp(minHeadroom) < 0 {
		maxFeePerGas = minHeadroom
	}

	onChainNonce, err := aa.GetNonce(s.client, sender, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("cannot fetch wallet nonce: %w", err)
	}

	return &userop.UserOperation{
		Sender:               sender,
		Nonce:                s.nonces.Next(sender, onChainNonce),
		InitCode:             initCode,
		CallData:             callData,
		CallGasLimit:         defaultCallGasLimit,
		VerificationGasLimit: verificationGas,
		PreVerificationGas:   defaultPreVerificationGas,
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		PaymasterAndData:     []byte{},
		Signature:            []byte{},
	}, nil
}

func verificationGasOr(deployed bool) *big.Int {
	if deployed {
		return defaultVerificationGasLimit
	}
	return deploymentVerificationGasLimit
}

// EstimateGas runs bundler estimation for op using a dummy signature of the
// right length. op's gas fields are left untouched; use applyGasEstimate to
// adopt the result.
func (s *Sender) EstimateGas(ctx context.Context, op *userop.UserOperation) (*bundler.GasEstimation, error) {
	estimateOp := *op
	sig, err := signer.SignMessage(s.cfg.ControllerPrivateKey, dummySigForGasEstimation.Bytes())
	if err != nil {
		return nil, err
	}
	estimateOp.Signature = sig

	return s.bundler.EstimateUserOperationGas(ctx, estimateOp, s.cfg.EntrypointAddress, nil)
}

// applyGasEstimate writes estimated limits into op. Deployment verification
// gas is never lowered: the bundler's binary search tends to undershoot
// factory execution.
func (s *Sender) applyGasEstimate(ctx context.Context, op *userop.UserOperation) error {
	gas, err := s.EstimateGas(ctx, op)
	if err != nil {
		return err
	}
	if gas == nil {
		return nil
	}

	op.CallGasLimit = gas.CallGasLimit
	op.PreVerificationGas = gas.PreVerificationGas
	if len(op.InitCode) == 0 {
		op.VerificationGasLimit = gas.VerificationGasLimit
	}
	s.logger.Debugf("gas estimated: call=%s verification=%s preVerification=%s",
		gas.CallGasLimit, gas.VerificationGasLimit, gas.PreVerificationGas)

	return nil
}

// attachPaymaster runs the deposit preflight, obtains the paymaster hash, and
// fills PaymasterAndData. Must run after gas limits and nonce are final since
// both are covered by the paymaster signature.
func (s *Sender) attachPaymaster(ctx context.Context, op *userop.UserOperation, req *VerifyingPaymasterRequest) error {
	deployed, err := s.resolver.IsDeployed(ctx, req.PaymasterAddress)
	if err != nil {
		return err
	}
	if !deployed {
		return fmt.Errorf("paymaster %s has no code: %w", req.PaymasterAddress.Hex(), bundler.ErrPaymasterNotDeployed)
	}

	info, err := aa.GetDepositInfo(s.client, req.PaymasterAddress)
	if err != nil {
		return fmt.Errorf("cannot read paymaster deposit: %w", err)
	}
	if required := requiredPrefund(op); info.Deposit.Cmp(required) < 0 {
		return fmt.Errorf("paymaster deposit %s below required prefund %s: %w",
			info.Deposit, required, bundler.ErrPaymasterDepositTooLow)
	}

	vp := paymaster.NewVerifyingPaymaster(s.client, req.PaymasterAddress)
	hash, err := vp.GetHash(ctx, op, req.ValidUntil, req.ValidAfter)
	if err != nil {
		return err
	}

	// VerifyingPaymaster validates against toEthSignedMessageHash(getHash(..)),
	// which is exactly the EIP-191 prefix over the 32 byte hash.
	sig, err := signer.SignMessage(s.cfg.ControllerPrivateKey, hash.Bytes())
	if err != nil {
		return fmt.Errorf("cannot sign paymaster hash: %w", err)
	}

	op.PaymasterAndData, err = vp.PackPaymasterAndData(sig, req.ValidUntil, req.ValidAfter)
	return err
}

// requiredPrefund mirrors EntryPoint v0.6's _getRequiredPrefund with the
// paymaster gas multiplier of 3.
func requiredPrefund(op *userop.UserOperation) *big.Int {
	gas := new(big.Int).Mul(op.VerificationGasLimit, big.NewInt(3))
	gas.Add(gas, op.CallGasLimit)
	gas.Add(gas, op.PreVerificationGas)
	return gas.Mul(gas, op.MaxFeePerGas)
}

func (s *Sender) signUserOp(ctx context.Context, op *userop.UserOperation) error {
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("cannot get chain id: %w", err)
	}

	hash := op.GetUserOpHash(s.cfg.EntrypointAddress, chainID)
	op.Signature, err = signer.SignMessage(s.cfg.ControllerPrivateKey, hash.Bytes())
	return err
}

// SendUserOp builds, signs, submits, and waits for the operation executing
// callData from owner's wallet. paymasterReq is optional; without it the
// wallet pays its own gas. The receipt is nil when the operation was accepted
// but not yet mined within the wait window.
func (s *Sender) SendUserOp(
	ctx context.Context,
	owner common.Address,
	callData []byte,
	paymasterReq *VerifyingPaymasterRequest,
) (*userop.UserOperation, *types.Receipt, error) {
	op, err := s.BuildUserOp(ctx, owner, callData)
	if err != nil {
		return nil, nil, err
	}

	if err := s.applyGasEstimate(ctx, op); err != nil {
		s.logger.Warnf("gas estimation failed, using fallback limits: %v", err)
	}

	userOpHash, err := s.submitWithRetry(ctx, op, paymasterReq)
	if err != nil {
		return op, nil, err
	}

	var entryID string
	if s.journal != nil {
		chainID, cerr := s.client.ChainID(ctx)
		if cerr == nil {
			entry, jerr := s.journal.Record(op, op.GetUserOpHash(s.cfg.EntrypointAddress, chainID))
			if jerr != nil {
				s.logger.Warnf("journal record failed: %v", jerr)
			} else {
				entryID = entry.ID
			}
		}
	}

	receipt, err := s.waitForConfirmation(ctx, userOpHash)
	if err != nil {
		s.logger.Warnf("confirmation wait failed for %s: %v", userOpHash, err)
		return op, nil, nil
	}
	if receipt == nil {
		s.logger.Infof("no receipt yet for %s, operation may still be pending", userOpHash)
		return op, nil, nil
	}

	metrics.IncUserOpConfirmed()
	if s.journal != nil && entryID != "" {
		if jerr := s.journal.MarkConfirmed(entryID, receipt.TxHash); jerr != nil {
			s.logger.Warnf("journal update failed: %v", jerr)
		}
	}

	s.logger.Infof("user operation confirmed: block=%d tx=%s gasUsed=%d",
		receipt.BlockNumber.Uint64(), receipt.TxHash.Hex(), receipt.GasUsed)

	return op, receipt, nil
}

// submitWithRetry signs and sends op, refreshing the nonce and re-signing on
// classified nonce conflicts. The paymaster signature covers the nonce, so
// sponsorship is re-attached on every attempt.
func (s *Sender) submitWithRetry(
	ctx context.Context,
	op *userop.UserOperation,
	paymasterReq *VerifyingPaymasterRequest,
) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if paymasterReq != nil {
			if err := s.attachPaymaster(ctx, op, paymasterReq); err != nil {
				if s.journal != nil {
					s.recordFailure(ctx, op, err)
				}
				return "", err
			}
		}

		if err := s.signUserOp(ctx, op); err != nil {
			return "", err
		}

		userOpHash, err := s.bundler.SendUserOperation(ctx, *op, s.cfg.EntrypointAddress)
		if err == nil && userOpHash == "" {
			err = fmt.Errorf("bundler accepted the operation but returned no hash")
		}
		if err == nil {
			s.logger.Infof("user operation sent (attempt %d/%d): hash=%s nonce=%s sender=%s",
				attempt+1, maxSendAttempts, userOpHash, op.Nonce, op.Sender.Hex())
			s.nonces.Advance(op.Sender, op.Nonce)

			// helps local dev bundlers that do not auto-bundle
			if terr := s.bundler.SendBundleNow(ctx); terr != nil {
				s.logger.Debugf("manual bundle trigger declined: %v", terr)
			}

			return userOpHash, nil
		}
		lastErr = err

		if errors.Is(err, bundler.ErrInvalidAccountNonce) && attempt < maxSendAttempts-1 {
			s.logger.Warnf("nonce conflict on attempt %d, refreshing from chain", attempt+1)
			s.nonces.Reset(op.Sender)

			fresh, nerr := aa.GetNonce(s.client, op.Sender, big.NewInt(0))
			if nerr != nil {
				return "", fmt.Errorf("cannot refresh nonce: %w", nerr)
			}
			op.Nonce = s.nonces.Next(op.Sender, fresh)
			continue
		}

		break
	}

	if s.journal != nil && lastErr != nil {
		s.recordFailure(ctx, op, lastErr)
	}

	return "", fmt.Errorf("error sending operation to bundler: %w", lastErr)
}

func (s *Sender) recordFailure(ctx context.Context, op *userop.UserOperation, cause error) {
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return
	}

	entry, err := s.journal.Record(op, op.GetUserOpHash(s.cfg.EntrypointAddress, chainID))
	if err != nil {
		return
	}

	var uerr *bundler.UserOperationError
	kind := bundler.KindUnknown.String()
	if errors.As(cause, &uerr) {
		kind = uerr.Kind.String()
	}
	if err := s.journal.MarkFailed(entry.ID, kind); err != nil {
		s.logger.Warnf("journal update failed: %v", err)
	}
}

// waitForConfirmation watches for the UserOperationEvent matching userOpHash.
// A websocket subscription is used when available, with log polling as the
// fallback. Returns (nil, nil) when the wait window elapses.
func (s *Sender) waitForConfirmation(ctx context.Context, userOpHash string) (*types.Receipt, error) {
	const (
		maxWaitTime     = 30 * time.Second
		initialInterval = 1 * time.Second
		maxInterval     = 5 * time.Second
		backoffFactor   = 1.5
	)

	deadline := time.Now().Add(maxWaitTime)

	if s.wsClient != nil {
		query := ethereum.FilterQuery{
			Addresses: []common.Address{s.cfg.EntrypointAddress},
			Topics:    [][]common.Hash{{userOpEventTopic0}, {common.HexToHash(userOpHash)}},
		}

		logs := make(chan types.Log)
		sub, err := s.wsClient.SubscribeFilterLogs(ctx, query, logs)
		if err == nil {
			defer sub.Unsubscribe()

			timer := time.NewTimer(maxWaitTime)
			defer timer.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-timer.C:
					return nil, nil
				case err := <-sub.Err():
					s.logger.Warnf("websocket subscription dropped, polling instead: %v", err)
					return s.pollForReceipt(ctx, userOpHash, deadline, initialInterval, maxInterval, backoffFactor)
				case vLog := <-logs:
					return s.client.TransactionReceipt(ctx, vLog.TxHash)
				}
			}
		}
		s.logger.Warnf("websocket subscription failed, polling instead: %v", err)
	}

	return s.pollForReceipt(ctx, userOpHash, deadline, initialInterval, maxInterval, backoffFactor)
}

func (s *Sender) pollForReceipt(
	ctx context.Context,
	userOpHash string,
	deadline time.Time,
	interval, maxInterval time.Duration,
	backoff float64,
) (*types.Receipt, error) {
	for {
		if time.Now().After(deadline) {
			return nil, nil
		}

		receipt, found, err := s.findUserOpReceipt(ctx, userOpHash)
		if err != nil {
			s.logger.Debugf("receipt poll error: %v", err)
		}
		if found {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * backoff)
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// findUserOpReceipt scans the last 20 blocks for the UserOperationEvent. The
// lookback absorbs small reorgs and slow polling starts.
func (s *Sender) findUserOpReceipt(ctx context.Context, userOpHash string) (*types.Receipt, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	currentBlock, err := s.client.BlockNumber(callCtx)
	if err != nil {
		return nil, false, fmt.Errorf("cannot get current block: %w", err)
	}

	fromBlock := currentBlock
	if currentBlock > 20 {
		fromBlock = currentBlock - 20
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(currentBlock),
		Addresses: []common.Address{s.cfg.EntrypointAddress},
		Topics:    [][]common.Hash{{userOpEventTopic0}, {common.HexToHash(userOpHash)}},
	}

	logs, err := s.client.FilterLogs(callCtx, query)
	if err != nil {
		return nil, false, fmt.Errorf("cannot filter logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, false, nil
	}

	receipt, err := s.client.TransactionReceipt(callCtx, logs[0].TxHash)
	if err != nil {
		return nil, false, fmt.Errorf("cannot get receipt for tx %s: %w", logs[0].TxHash.Hex(), err)
	}

	return receipt, true, nil
}
