// ims-sync runs a single sync cycle against SYNC_SERVER_URL and exits.
// The exit code is 0 on a clean cycle, 1 when the cycle could not run and
// 3 when it finished with errors or unresolved conflicts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/ims_backend/config"
	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/syncer"
	"github.com/mmdatafocus/ims_backend/utils"
)

func main() {
	settings := config.LoadSettings()
	logger := config.NewLogger(settings.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.OpenDatabase(settings.DBDriver, settings.DBDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}
	store := models.NewStore(db, logger)

	policy, err := syncer.ParseConflictPolicy(settings.SyncConflictPolicy)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	client, err := syncer.NewClient(syncer.ClientConfig{
		BaseURL:   settings.SyncServerURL,
		APIKey:    settings.SyncAPIKey,
		JWTSecret: settings.SyncJWTSecret,
		SiteId:    settings.SyncSiteId,
		Timeout:   settings.SyncHTTPTimeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	coordinator := syncer.NewCoordinator(store, client, policy, logger)
	if settings.RedisAddress != "" {
		rdb, locker, err := config.ConnectRedis(ctx, settings.RedisAddress, 3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis unavailable, continuing without lock: %v\n", err)
		} else {
			defer rdb.Close()
			coordinator.UseRedisLock(locker, "lock:ims-sync:"+settings.SyncSiteId)
		}
	}

	ctx = utils.SetSyncTriggerInContext(ctx, string(models.SyncTriggerCli))
	result, err := coordinator.Sync(ctx)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			fmt.Fprintln(os.Stderr, "another sync is running")
		} else {
			fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		}
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if result.Err() != nil {
		os.Exit(3)
	}
}
