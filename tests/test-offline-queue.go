// Package main provides a unit test utility for offline queue functionality.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"RelayLane/internal/biz"
	"RelayLane/internal/data"
	"RelayLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// Manual integration test for the offline queue
// This tests the OfflineQueue directly with a real Redis instance

func main() {
	// Create logger
	logger := log.NewStdLogger(os.Stdout)

	fmt.Println("==========================================")
	fmt.Println("RelayLane Offline Queue Integration Test")
	fmt.Println("==========================================")
	fmt.Println()

	fmt.Println("Step 1: Connect to Redis")
	fmt.Println("------------------------------------------")

	rdb := redis.NewClient(&redis.Options{
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Printf("✗ Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Connected to Redis successfully")
	fmt.Println()

	const keyPrefix = "relaylane-test"
	queueKey := keyPrefix + ":queue:ops"

	// Clean up test data
	defer func() {
		fmt.Println()
		fmt.Println("==========================================")
		fmt.Println("Cleanup")
		fmt.Println("==========================================")
		rdb.Del(ctx, queueKey)
		fmt.Println("✓ Cleaned up test data")
	}()
	rdb.Del(ctx, queueKey)

	payload := func(n int) json.RawMessage {
		return json.RawMessage(fmt.Sprintf(`{"seq":%d}`, n))
	}

	// Test FIFO Ordering
	fmt.Println("Step 2: Test FIFO Ordering")
	fmt.Println("------------------------------------------")
	fmt.Println("Enqueue 5 operations, drain, expect delivery in queue order")
	fmt.Println()

	store := data.NewRedisQueueStore(rdb, keyPrefix, nil, logger)
	queue := biz.NewOfflineQueue(store, biz.QueueOptions{Capacity: 100, MaxAttempts: 5}, nil, logger)

	fifoPassed := 0
	for i := 1; i <= 5; i++ {
		op := model.NewQueuedOperation(fmt.Sprintf("fifo-%d", i), payload(i))
		if _, err := queue.Enqueue(ctx, op); err != nil {
			fmt.Printf("  Enqueue %d: ✗ FAIL - %v\n", i, err)
		} else {
			fmt.Printf("  Enqueue %d: ✓ queued\n", i)
			fifoPassed++
		}
	}

	var delivered []string
	stats, err := queue.Drain(ctx, func(ctx context.Context, op *model.QueuedOperation) error {
		delivered = append(delivered, op.ID)
		return nil
	})
	if err != nil {
		fmt.Printf("  Drain: ✗ FAIL - %v\n", err)
	} else if stats.Delivered == 5 {
		fmt.Printf("  Drain: ✓ delivered %d operations\n", stats.Delivered)
		fifoPassed++
	} else {
		fmt.Printf("  Drain: ✗ FAIL - delivered %d, expected 5\n", stats.Delivered)
	}

	ordered := len(delivered) == 5
	for i, id := range delivered {
		if id != fmt.Sprintf("fifo-%d", i+1) {
			ordered = false
		}
	}
	if ordered {
		fmt.Println("  Order: ✓ FIFO preserved")
		fifoPassed++
	} else {
		fmt.Printf("  Order: ✗ FAIL - got %v\n", delivered)
	}

	if fifoPassed == 7 {
		fmt.Println()
		fmt.Println("✓ FIFO ordering works correctly!")
	} else {
		fmt.Println()
		fmt.Printf("✗ FIFO test failed: %d/7 passed\n", fifoPassed)
	}
	fmt.Println()

	// Test Capacity Eviction
	fmt.Println("Step 3: Test Capacity Eviction")
	fmt.Println("------------------------------------------")
	fmt.Println("Capacity: 3, enqueue 5, expect the 2 oldest evicted")
	fmt.Println()

	small := biz.NewOfflineQueue(store, biz.QueueOptions{Capacity: 3, MaxAttempts: 5}, nil, logger)
	var evictedIDs []string
	var evictedMu sync.Mutex
	small.OnEvicted(func(op *model.QueuedOperation) {
		evictedMu.Lock()
		evictedIDs = append(evictedIDs, op.ID)
		evictedMu.Unlock()
	})

	evictionPassed := 0
	for i := 1; i <= 5; i++ {
		op := model.NewQueuedOperation(fmt.Sprintf("evict-%d", i), payload(i))
		evicted, err := small.Enqueue(ctx, op)
		switch {
		case err != nil:
			fmt.Printf("  Enqueue %d: ✗ FAIL - %v\n", i, err)
		case i <= 3 && len(evicted) == 0:
			fmt.Printf("  Enqueue %d: ✓ queued (no eviction)\n", i)
			evictionPassed++
		case i > 3 && len(evicted) == 1:
			fmt.Printf("  Enqueue %d: ✓ queued, evicted %s\n", i, evicted[0].ID)
			evictionPassed++
		default:
			fmt.Printf("  Enqueue %d: ✗ FAIL - evicted %d entries\n", i, len(evicted))
		}
	}

	size, _ := small.Size(ctx)
	if size == 3 {
		fmt.Println("  Size: ✓ capped at capacity 3")
		evictionPassed++
	} else {
		fmt.Printf("  Size: ✗ FAIL - got %d, expected 3\n", size)
	}

	evictedMu.Lock()
	callbackOK := len(evictedIDs) == 2 && evictedIDs[0] == "evict-1" && evictedIDs[1] == "evict-2"
	evictedMu.Unlock()
	if callbackOK {
		fmt.Println("  Callbacks: ✓ both evictions reported, oldest first")
		evictionPassed++
	} else {
		fmt.Printf("  Callbacks: ✗ FAIL - got %v\n", evictedIDs)
	}

	if evictionPassed == 7 {
		fmt.Println()
		fmt.Println("✓ Capacity eviction works correctly!")
	} else {
		fmt.Println()
		fmt.Printf("✗ Eviction test failed: %d/7 passed\n", evictionPassed)
	}
	rdb.Del(ctx, queueKey)
	fmt.Println()

	// Test Replay Attempts and Exhaustion
	fmt.Println("Step 4: Test Replay Attempts and Exhaustion")
	fmt.Println("------------------------------------------")
	fmt.Println("Max attempts: 3, sender always fails")
	fmt.Println()

	strict := biz.NewOfflineQueue(store, biz.QueueOptions{Capacity: 100, MaxAttempts: 3}, nil, logger)
	var exhaustedIDs []string
	strict.OnExhausted(func(op *model.QueuedOperation) {
		exhaustedIDs = append(exhaustedIDs, op.ID)
	})

	replayPassed := 0
	op := model.NewQueuedOperation("doomed-1", payload(1))
	if _, err := strict.Enqueue(ctx, op); err != nil {
		fmt.Printf("  Enqueue: ✗ FAIL - %v\n", err)
	} else {
		fmt.Println("  Enqueue: ✓ queued")
		replayPassed++
	}

	failingSender := func(ctx context.Context, op *model.QueuedOperation) error {
		return fmt.Errorf("remote unavailable")
	}

	// Cycle 1: attempt 1 fails, rotated to tail
	stats, _ = strict.Drain(ctx, failingSender)
	if stats.Requeued == 1 && stats.Exhausted == 0 {
		fmt.Println("  Cycle 1: ✓ requeued after failure (attempt 1)")
		replayPassed++
	} else {
		fmt.Printf("  Cycle 1: ✗ FAIL - requeued=%d exhausted=%d\n", stats.Requeued, stats.Exhausted)
	}

	// Cycle 2: attempt 2 fails, rotated again
	stats, _ = strict.Drain(ctx, failingSender)
	if stats.Requeued == 1 && stats.Exhausted == 0 {
		fmt.Println("  Cycle 2: ✓ requeued after failure (attempt 2)")
		replayPassed++
	} else {
		fmt.Printf("  Cycle 2: ✗ FAIL - requeued=%d exhausted=%d\n", stats.Requeued, stats.Exhausted)
	}

	// Cycle 3: attempt 3 reaches the bound, dropped for good
	stats, _ = strict.Drain(ctx, failingSender)
	if stats.Exhausted == 1 {
		fmt.Println("  Cycle 3: ✓ dropped after exhausting attempts")
		replayPassed++
	} else {
		fmt.Printf("  Cycle 3: ✗ FAIL - exhausted=%d\n", stats.Exhausted)
	}

	size, _ = strict.Size(ctx)
	if size == 0 {
		fmt.Println("  Size: ✓ queue empty after exhaustion")
		replayPassed++
	} else {
		fmt.Printf("  Size: ✗ FAIL - got %d, expected 0\n", size)
	}

	if len(exhaustedIDs) == 1 && exhaustedIDs[0] == "doomed-1" {
		fmt.Println("  Callback: ✓ exhaustion reported")
		replayPassed++
	} else {
		fmt.Printf("  Callback: ✗ FAIL - got %v\n", exhaustedIDs)
	}

	if replayPassed == 6 {
		fmt.Println()
		fmt.Println("✓ Replay attempt tracking works correctly!")
	} else {
		fmt.Println()
		fmt.Printf("✗ Replay test failed: %d/6 passed\n", replayPassed)
	}
	fmt.Println()

	// Test Restart Survival
	fmt.Println("Step 5: Test Restart Survival")
	fmt.Println("------------------------------------------")
	fmt.Println("Enqueue, rebuild the queue over the same store, drain")
	fmt.Println()

	survivalPassed := 0
	op = model.NewQueuedOperation("survivor-1", payload(42))
	if _, err := queue.Enqueue(ctx, op); err != nil {
		fmt.Printf("  Enqueue: ✗ FAIL - %v\n", err)
	} else {
		fmt.Println("  Enqueue: ✓ queued")
		survivalPassed++
	}

	// A fresh OfflineQueue over the same Redis key sees the persisted entry,
	// which is exactly what a process restart looks like.
	reborn := biz.NewOfflineQueue(
		data.NewRedisQueueStore(rdb, keyPrefix, nil, logger),
		biz.QueueOptions{Capacity: 100, MaxAttempts: 5},
		nil, logger)

	size, _ = reborn.Size(ctx)
	if size == 1 {
		fmt.Println("  Reload: ✓ entry visible after rebuild")
		survivalPassed++
	} else {
		fmt.Printf("  Reload: ✗ FAIL - size %d, expected 1\n", size)
	}

	stats, _ = reborn.Drain(ctx, func(ctx context.Context, op *model.QueuedOperation) error {
		if op.ID != "survivor-1" {
			return fmt.Errorf("unexpected operation %s", op.ID)
		}
		return nil
	})
	if stats.Delivered == 1 {
		fmt.Println("  Drain: ✓ survivor delivered")
		survivalPassed++
	} else {
		fmt.Printf("  Drain: ✗ FAIL - delivered=%d\n", stats.Delivered)
	}

	if survivalPassed == 3 {
		fmt.Println()
		fmt.Println("✓ Restart survival works correctly!")
	} else {
		fmt.Println()
		fmt.Printf("✗ Survival test failed: %d/3 passed\n", survivalPassed)
	}
	fmt.Println()

	// Summary
	fmt.Println("==========================================")
	fmt.Println("Test Summary")
	fmt.Println("==========================================")

	totalTests := 7 + 7 + 6 + 3
	totalPassed := fifoPassed + evictionPassed + replayPassed + survivalPassed

	fmt.Printf("Total Tests: %d\n", totalTests)
	fmt.Printf("Tests Passed: %d\n", totalPassed)
	fmt.Printf("Tests Failed: %d\n", totalTests-totalPassed)
	fmt.Println()

	if totalPassed == totalTests {
		fmt.Println("✓ All offline queue tests completed successfully!")
		os.Exit(0)
	} else {
		fmt.Println("✗ Some tests failed. Please review the output above.")
		os.Exit(1)
	}
}
