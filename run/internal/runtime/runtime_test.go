package runtime_test

import (
	"reflect"
	"testing"
	"time"

	"go.uber.org/goleak"

	"pipelined.dev/flow"
	"pipelined.dev/flow/clock"
	"pipelined.dev/flow/run/internal/runtime"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueue(t *testing.T) {
	q := runtime.NewQueue()
	assertEqual(t, "put", q.Put(flow.Notify{Block: 1}), true)
	assertEqual(t, "put", q.Put(flow.Notify{Block: 2}), true)
	select {
	case <-q.Ready():
	default:
		t.Fatal("queue is not ready")
	}
	assertEqual(t, "drain", q.Drain(), []flow.Message{flow.Notify{Block: 1}, flow.Notify{Block: 2}})
	assertEqual(t, "drain empty", len(q.Drain()), 0)

	q.Put(flow.Notify{Block: 3})
	assertEqual(t, "close", q.Close(), []flow.Message{flow.Notify{Block: 3}})
	assertEqual(t, "put closed", q.Put(flow.Notify{Block: 4}), false)
}

func TestTimers(t *testing.T) {
	var posted []flow.Message
	c := clock.NewFake()
	timers := runtime.NewTimers(c, func(m flow.Message) {
		posted = append(posted, m)
	})

	timers.Arm(1, time.Second)
	timers.Arm(2, 2*time.Second)
	assertEqual(t, "pending", timers.Pending(1), true)
	// rearm replaces the pending timer
	timers.Arm(1, 3*time.Second)
	assertEqual(t, "fake pending", c.Pending(), 2)

	c.Advance(2 * time.Second)
	assertEqual(t, "posted", posted, []flow.Message{flow.Notify{Action: flow.NotifyInput, Block: 2}})
	assertEqual(t, "pending", timers.Pending(2), false)

	c.Advance(time.Second)
	assertEqual(t, "posted", len(posted), 2)
	assertEqual(t, "target", posted[1].Target(), flow.BlockID(1))

	timers.Arm(3, time.Second)
	timers.StopAll()
	c.Advance(time.Minute)
	assertEqual(t, "stopped", len(posted), 2)
	assertEqual(t, "pending", timers.Pending(3), false)
}

func assertNil(t *testing.T, name string, result interface{}) {
	t.Helper()
	assertEqual(t, name, result, nil)
}

func assertEqual(t *testing.T, name string, result, expected interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, result) {
		t.Fatalf("%v\nresult: \t%T\t%+v \nexpected: \t%T\t%+v", name, result, result, expected, expected)
	}
}
