package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/offpay/offpay/internal/bus"
	"github.com/offpay/offpay/internal/client"
	"github.com/offpay/offpay/internal/config"
	"github.com/offpay/offpay/internal/gate"
	"github.com/offpay/offpay/internal/ledger"
	"github.com/offpay/offpay/internal/protocol"
	"github.com/offpay/offpay/internal/store"
	"github.com/offpay/offpay/internal/wallet"
)

// demoGateSecret mirrors the original demo's confirmation code. Used only
// when no gate signing key is configured.
const demoGateSecret = "2239"

var (
	dataDir   string
	serverURL string
	userID    string
	userName  string
	verbose   bool

	cfg    *config.Config
	logger *zap.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "offpay",
		Short:         "Peer-to-peer QR payment wallet",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if serverURL != "" {
				cfg.RelayURL = serverURL
			}
			if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
				return err
			}
			logger = zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logger = l
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "wallet data dir (default ~/.config/offpay)")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "relay websocket URL (default ws://localhost:3001/ws)")
	root.PersistentFlags().StringVarP(&userID, "user", "u", "", "wallet user id")
	root.PersistentFlags().StringVar(&userName, "name", "", "display name sent on registration")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(
		listenCmd(), sendCmd(), balanceCmd(), historyCmd(),
		statsCmd(), topupCmd(), requestCmd(), scanCmd(),
	)
	return root.Execute()
}

// deps is the wired client side for one command invocation.
type deps struct {
	bus       *bus.Bus
	ledger    *ledger.Ledger
	store     *store.Store
	gate      gate.Authorizer
	wallet    *wallet.Wallet
	transport *client.Transport
}

// buildDeps wires the wallet stack. The transport stays disconnected
// until the command dials it.
func buildDeps() (*deps, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required (--user)")
	}
	name := userName
	if name == "" {
		name = "Anonymous"
	}

	b := bus.New()
	l := ledger.New(cfg.DataDir, logger)
	st := store.New(cfg.DataDir, userID, cfg.StoreSecret, b, logger)

	var g gate.Authorizer
	if cfg.GateKey != "" {
		g = gate.NewTokenGate([]byte(cfg.GateKey), cfg.GateTTL)
	} else {
		g = gate.NewStaticGate(demoGateSecret)
	}

	var w *wallet.Wallet
	tr := client.New(cfg.RelayURL, protocol.RegisterUser{UserID: userID, Username: name},
		func(env protocol.Envelope) {
			if w != nil {
				w.HandleRelayEvent(env)
			}
		}, logger)
	w = wallet.New(userID, l, st, g, tr, b, logger)

	return &deps{bus: b, ledger: l, store: st, gate: g, wallet: w, transport: tr}, nil
}

func (d *deps) close() {
	_ = d.transport.Close()
	d.bus.Close()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
