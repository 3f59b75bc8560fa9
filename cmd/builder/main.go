// Command builder runs the rollup block builder: the transaction-pool
// poller, block-assembly engine, submission pipeline, and HTTP ingest
// server, wired together by the process supervisor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/common"

	"github.com/init4tech/zenith-builder/assembler"
	"github.com/init4tech/zenith-builder/codec"
	"github.com/init4tech/zenith-builder/config"
	"github.com/init4tech/zenith-builder/ingest"
	"github.com/init4tech/zenith-builder/log"
	"github.com/init4tech/zenith-builder/oauthtoken"
	"github.com/init4tech/zenith-builder/signer"
	"github.com/init4tech/zenith-builder/submission"
	"github.com/init4tech/zenith-builder/supervisor"
	"github.com/init4tech/zenith-builder/txpool"
	"github.com/init4tech/zenith-builder/web3rpc"
)

// Version is set at build time via -ldflags, following the teacher's
// convention; left at "dev" for unreleased builds.
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.LogLevelInfo, "stderr", nil)
	log.Infow("starting zenith-builder", "version", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup, err := setup(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to set up builder: %v", err)
	}

	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Infow("received signal, shutting down", "signal", sig.String())
	case <-supDone:
	}
	cancel()
}

// setup resolves signers, dials the host RPC, and wires every component
// the supervisor owns. It is the one place allowed to know about every
// package's construction contract.
func setup(ctx context.Context, cfg *config.Config) (*supervisor.Supervisor, error) {
	var kmsClient signer.KMSAPI
	if needsKMS(cfg) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	builderSigner, err := signer.Load(ctx, cfg.BuilderKey, cfg.HostChainID, kmsClient)
	if err != nil {
		return nil, fmt.Errorf("load builder key: %w", err)
	}

	// Remote-signing mode is determined by QUINCEY_URL, not by the absence
	// of SEQUENCER_KEY: the pipeline must always verify recovered
	// signatures against a known authorized address (§9 open question),
	// so SEQUENCER_KEY doubles as that address when signing happens
	// remotely — it holds a bare hex address rather than key material in
	// that case.
	var seqSigner signer.Signer
	var remoteSigner submission.RemoteSigner
	var authorizedSeq common.Address
	if cfg.QuinceyURL != "" {
		if !common.IsHexAddress(cfg.SequencerKey) {
			return nil, fmt.Errorf("remote signing requires SEQUENCER_KEY to hold the authorized sequencer address")
		}
		authorizedSeq = common.HexToAddress(cfg.SequencerKey)
		tokens := oauthtoken.New(oauthtoken.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     cfg.OAuthTokenURL,
			Audience:     cfg.OAuthAudience,
		})
		remoteSigner = submission.NewHTTPRemoteSigner(cfg.QuinceyURL, tokens)
	} else {
		seqSigner, err = signer.Load(ctx, cfg.SequencerKey, cfg.RUChainID, kmsClient)
		if err != nil {
			return nil, fmt.Errorf("load sequencer key: %w", err)
		}
		authorizedSeq = seqSigner.Address()
	}

	host, err := web3rpc.Dial(ctx, cfg.HostRPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial host rpc: %w", err)
	}

	poller := txpool.New(txpool.Config{
		PoolURL:      cfg.TxPoolURL,
		PollInterval: cfg.TxPoolPollInterval,
		CacheTTL:     cfg.TxPoolCacheDuration,
	})

	pushBuf, blockBuf := supervisor.Buffers(supervisor.Config{})
	pushChan := make(chan *codec.Transaction, pushBuf)
	outChan := make(chan *codec.Block, blockBuf)

	engine := assembler.New(cfg.IncomingTransactionsBuffer, poller, pushChan, outChan)

	pipeline := submission.New(submission.Config{
		HostChainID:   cfg.HostChainID,
		RUChainID:     cfg.RUChainID,
		ZenithAddress: common.HexToAddress(cfg.ZenithAddress),
		RewardAddress: common.HexToAddress(cfg.BuilderRewardsAddress),
		GasLimit:      cfg.RollupBlockGasLimit,
		AuthorizedSeq: authorizedSeq,
	}, host, seqSigner, remoteSigner, builderSigner)

	ingestSrv := ingest.New(pushChan)

	supCfg := supervisor.Config{
		IngestAddr:  fmt.Sprintf(":%d", cfg.BuilderPort),
		PushBuffer:  pushBuf,
		BlockBuffer: blockBuf,
	}
	return supervisor.New(supCfg, engine, pipeline, ingestSrv, pushChan, outChan), nil
}

// needsKMS reports whether either key identifier is likely to require a
// KMS client: it is cheap and safe to construct the client speculatively,
// but dialing AWS when nothing will use it is needless startup latency in
// local-key-only deployments.
func needsKMS(cfg *config.Config) bool {
	isHexKey := func(s string) bool {
		if s == "" {
			return false
		}
		for _, c := range s {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') || c == 'x') {
				return false
			}
		}
		return len(s) >= 64
	}
	if cfg.BuilderKey != "" && !isHexKey(cfg.BuilderKey) {
		return true
	}
	if cfg.SequencerKey != "" && !isHexKey(cfg.SequencerKey) {
		return true
	}
	return false
}

