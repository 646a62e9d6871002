package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ZentaChain/zentalk-groupchat/pkg/announce"
	"github.com/ZentaChain/zentalk-groupchat/pkg/api"
	"github.com/ZentaChain/zentalk-groupchat/pkg/node"
	"github.com/ZentaChain/zentalk-groupchat/pkg/session"
	"github.com/ZentaChain/zentalk-groupchat/pkg/transport"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}

	cmd.Flags().String("listen", "", "UDP address for group traffic")
	cmd.Flags().Int("api-port", 0, "HTTP API port, 0 disables the API")
	cmd.Flags().Int("dht-port", 0, "announcement DHT port, 0 disables the DHT")
	cmd.Flags().StringSlice("bootstrap", nil, "DHT bootstrap peer multiaddrs")
	cmd.Flags().String("nick", "", "nick used in new chats")
	cmd.Flags().String("data", "", "data directory")
	return cmd
}

func run(ctx context.Context) error {
	printBanner()

	store, err := openIdentities()
	if err != nil {
		return err
	}
	id, err := store.LoadOrCreate(cfg.KeyName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cache, err := announce.NewSQLiteBook(cfg.AnnounceDBPath(), nil)
	if err != nil {
		return err
	}
	defer cache.Close()
	if n, err := cache.Prune(); err == nil && n > 0 {
		log.Printf("Pruned %d expired announcements", n)
	}

	var book session.AddressBook = cache
	if cfg.DHTPort > 0 {
		dhtBook, err := announce.NewDHTBook(ctx, announce.DHTConfig{
			ListenAddrs: cfg.DHTListenAddrs(),
			Bootstrap:   cfg.BootstrapPeers,
			Cache:       cache,
		})
		if err != nil {
			return err
		}
		defer dhtBook.Close()
		book = dhtBook

		for _, addr := range dhtBook.Addrs() {
			log.Printf("   DHT: %s", addr)
		}
	}

	udp, err := transport.Listen(cfg.ListenAddr)
	if err != nil {
		return err
	}

	n, err := node.New(node.Config{
		Identity:     id,
		Transport:    udp,
		Book:         book,
		TickInterval: cfg.TickInterval,
		Nick:         []byte(cfg.Nick),
		AnnounceAddr: cfg.AnnounceAddr,
	})
	if err != nil {
		udp.Close()
		return err
	}

	fmt.Println()
	fmt.Println("Node Information:")
	fmt.Printf("  Identity: %s\n", n.PublicKey())
	fmt.Printf("  Listen:   %s\n", n.LocalAddr())
	if n.AnnounceAddr().IsValid() {
		fmt.Printf("  Announce: %s\n", n.AnnounceAddr())
	} else {
		log.Println("⚠️  No routable announce address, set GC_ANNOUNCE_ADDR so others can join our chats")
	}
	fmt.Println()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(ctx) })

	if cfg.APIPort > 0 {
		apiConfig := api.DefaultConfig()
		apiConfig.Port = cfg.APIPort
		apiConfig.RateLimit = cfg.RateLimit
		apiConfig.APIKeys = cfg.APIKeys

		server := api.NewServer(n, apiConfig)
		g.Go(func() error { return server.Start(ctx) })
	}

	err = g.Wait()
	log.Println("👋 Goodbye!")
	return err
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║            Zentalk Group Chat Node                ║")
	fmt.Println("║      Decentralised encrypted group messaging      ║")
	fmt.Println("╚═══════════════════════════════════════════════════╝")
	fmt.Println()
}
