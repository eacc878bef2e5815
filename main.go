package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/linkerd/mock-dst/identity"
	"github.com/linkerd/mock-dst/mockdst"
	"github.com/linkerd/mock-dst/pkg/admin"
	"github.com/linkerd/mock-dst/pkg/flags"
	log "github.com/sirupsen/logrus"
)

const (
	dstsEnv      = "LINKERD2_MOCK_DSTS"
	overridesEnv = "LINKERD2_MOCK_DST_OVERRIDES"
)

func main() {
	cmd := flag.NewFlagSet("mock-dst", flag.ExitOnError)

	addr := cmd.String("addr", ":8086", "address to serve on")
	metricsAddr := cmd.String("metrics-addr", ":9996", "address to serve scrapable metrics on")
	dsts := cmd.String("dsts", os.Getenv(dstsEnv),
		"destination endpoints to serve, as name:port=addr[#h2[#identity]],...;...")
	dstOverrides := cmd.String("dst-overrides", os.Getenv(overridesEnv),
		"traffic splits to serve, as name:port=target[*weight],...;...")
	endpointsDir := cmd.String("endpoints-dir", "",
		"directory of per-destination endpoint files to watch; mutually exclusive with -dsts and -dst-overrides")
	identityDir := cmd.String("identity-dir", "",
		"directory of pre-provisioned identity certificates to serve")

	flags.ConfigureAndParse(cmd, os.Args[1:])

	if *endpointsDir != "" && (*dsts != "" || *dstOverrides != "") {
		log.Fatal("-endpoints-dir cannot be combined with -dsts or -dst-overrides")
	}

	endpoints, err := mockdst.ParseEndpointsSpec(*dsts)
	if err != nil {
		log.Fatalf("Failed to parse destinations: %s", err)
	}
	overrides, err := mockdst.ParseOverridesSpec(*dstOverrides)
	if err != nil {
		log.Fatalf("Failed to parse overrides: %s", err)
	}

	store := mockdst.NewSnapshotStore()
	store.Seed(endpoints, overrides)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %s", *addr, err)
	}

	server := mockdst.NewServer(store)

	if *identityDir != "" {
		svc, err := identity.NewService(*identityDir)
		if err != nil {
			log.Fatalf("Failed to load identities: %s", err)
		}
		identity.Register(server, svc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *endpointsDir != "" {
		reconciler := mockdst.NewFsReconciler(*endpointsDir, store.Publisher())
		go func() {
			if err := reconciler.Run(ctx); err != nil {
				log.Fatalf("Failed to watch %s: %s", *endpointsDir, err)
			}
		}()
	}

	go func() {
		log.Infof("starting gRPC server on %s", *addr)
		if err := server.Serve(lis); err != nil {
			log.Errorf("gRPC server stopped: %s", err)
		}
	}()

	go admin.StartServer(*metricsAddr)

	<-stop
	log.Infof("shutting down gRPC server on %s", *addr)
	cancel()
	server.GracefulStop()
	store.Close()
}
