package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/pos_sync/config"
	"github.com/mmdatafocus/pos_sync/outbox"
	"github.com/mmdatafocus/pos_sync/store"
)

// Operator tool: dump the pending outbox state for every tenant on this
// device, straight from the local store. Read-only.
func main() {
	baseKey := flag.String("queue", "", "Limit to one queue base key (default: all four)")
	verbose := flag.Bool("verbose", false, "Print full item payloads, not just summaries")
	flag.Parse()

	config.ConnectLocalDBWithRetry()
	st := store.NewStore(config.GetDB(), config.GetLogger())

	queues := []string{
		outbox.KeySalesQueue,
		outbox.KeyExpensesQueue,
		outbox.KeyInventoryQueue,
		outbox.KeyBookingsQueue,
	}
	if strings.TrimSpace(*baseKey) != "" {
		queues = []string{strings.TrimSpace(*baseKey)}
	}

	for _, queue := range queues {
		for _, key := range st.ScopedKeys(queue) {
			items := readItems(st, key, queue)
			fmt.Printf("%s\t%d pending\n", key, len(items))
			for _, item := range items {
				line := fmt.Sprintf("  %s\t%s\tenqueued=%s", item.ID, item.Op, item.EnqueuedAt.Format("2006-01-02T15:04:05Z07:00"))
				if item.LastError != "" {
					line += "\terror=" + item.LastError
				}
				fmt.Println(line)
				if *verbose {
					fmt.Printf("    %s\n", string(item.Payload))
				}
			}
		}
	}
}

// readItems decodes one stored queue blob without knowing its payload type.
func readItems(st *store.Store, fullKey, baseKey string) []outbox.Item[json.RawMessage] {
	scope, ok := splitScope(fullKey, baseKey)
	if !ok {
		return nil
	}
	var items []outbox.Item[json.RawMessage]
	if !store.ReadJSON(st, scope, baseKey, &items) {
		fmt.Fprintf(os.Stderr, "failed to decode %s\n", fullKey)
	}
	return items
}

// splitScope recovers the tenant scope from a stored key of the form
// tenant:{businessId}:user:{userId}:{baseKey}. The bare base key maps to the
// legacy unscoped namespace.
func splitScope(fullKey, baseKey string) (store.TenantScope, bool) {
	if fullKey == baseKey {
		return store.TenantScope{}, true
	}
	trimmed := strings.TrimSuffix(fullKey, ":"+baseKey)
	if trimmed == fullKey || !strings.HasPrefix(trimmed, "tenant:") {
		return store.TenantScope{}, false
	}
	parts := strings.SplitN(strings.TrimPrefix(trimmed, "tenant:"), ":user:", 2)
	if len(parts) != 2 {
		return store.TenantScope{}, false
	}
	return store.TenantScope{BusinessID: parts[0], UserID: parts[1]}, true
}
