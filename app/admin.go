package app

import (
	"context"
	"log"
	"net/http"

	"github.com/coroweb/httpcore/core/observability"
	"github.com/coroweb/httpcore/core/reactor"
	rpcserver "github.com/coroweb/httpcore/core/rpc/server"
)

// AdminService is the out-of-band RPC surface operators talk to without
// going through the serving reactor itself: pool statistics, detected
// bottlenecks, a full observatory report, and the maintenance switch.
// Method signatures follow the registry convention
// func(ctx, *Args) (*Reply, error) so core/rpc/registry picks them up by
// reflection.
type AdminService struct {
	app *App
}

type StatsArgs struct{}

// StatsReply is the admin "give me everything" snapshot.
type StatsReply struct {
	Pools       reactor.Stats              `json:"pools"`
	Bottlenecks []observability.Bottleneck `json:"bottlenecks"`
	Maintenance bool                       `json:"maintenance"`
}

// Stats returns pool statistics, detected bottlenecks, and the maintenance
// state in one snapshot.
func (s *AdminService) Stats(ctx context.Context, args *StatsArgs) (*StatsReply, error) {
	reply := &StatsReply{
		Bottlenecks: s.app.obs.Monitor.GetBottlenecks(),
	}
	if s.app.reactor != nil {
		reply.Pools = s.app.reactor.PoolStats()
	}
	if down, ok := s.app.manager.Get("maintenance"); ok {
		reply.Maintenance = down == true
	}
	return reply, nil
}

type ReportArgs struct{}

type ReportReply struct {
	Report string `json:"report"`
}

// Report returns the human-readable observatory report.
func (s *AdminService) Report(ctx context.Context, args *ReportArgs) (*ReportReply, error) {
	return &ReportReply{Report: s.app.obs.GetFullReport()}, nil
}

type MaintenanceArgs struct {
	On bool `json:"on"`
}

type MaintenanceReply struct {
	Maintenance bool `json:"maintenance"`
}

// Maintenance flips the runtime maintenance flag (the same Manager key
// App.Manager().Set("maintenance", ...) sets) without a restart and
// without touching the serving ports.
func (s *AdminService) Maintenance(ctx context.Context, args *MaintenanceArgs) (*MaintenanceReply, error) {
	s.app.manager.Set("maintenance", args.On)
	return &MaintenanceReply{Maintenance: args.On}, nil
}

// startAdmin brings up the admin RPC listener (and, when metricsAddr is
// set, a plain HTTP listener exposing the Prometheus /metrics handler).
// Both live on their own goroutines and die with the process; they are
// deliberately not part of the reactor's graceful-drain path since an
// operator mid-shutdown still wants stats.
func (a *App) startAdmin(adminAddr, metricsAddr string) {
	if adminAddr != "" {
		srv := rpcserver.NewServer()
		if err := srv.Register("Admin", &AdminService{app: a}); err != nil {
			log.Printf("app: admin service registration failed: %v", err)
		} else {
			a.adminRPC = srv
			go func() {
				if err := srv.ListenAndServe(adminAddr); err != nil {
					log.Printf("app: admin RPC listener failed: %v", err)
				}
			}()
		}
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.obs.Monitor.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Printf("app: metrics listener failed: %v", err)
			}
		}()
	}
}
