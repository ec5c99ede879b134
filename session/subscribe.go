package session

import (
	"time"

	"github.com/example/imapwatch/filter"
	"github.com/example/imapwatch/imapwire"
	"github.com/example/imapwatch/message"
	"github.com/example/imapwatch/mlog"
)

// subscriberQueueSize bounds how many delivered messages a slow subscriber
// can have buffered before further deliveries to it are dropped.
const subscriberQueueSize = 32

// Target receives delivered messages. The session never calls Deliver
// directly: each subscriber has its own delivery worker goroutine and
// bounded queue, so a slow or blocked Target only ever stalls its own
// queue, never the session. If the queue is full when a message arrives,
// that message is dropped for this subscriber; the subscriber stays
// registered.
type Target interface {
	Deliver(DeliveredMessage)
}

// TargetFunc adapts a plain function to a Target.
type TargetFunc func(DeliveredMessage)

func (f TargetFunc) Deliver(m DeliveredMessage) { f(m) }

// Handle identifies one subscription, returned by Subscribe and consumed by
// Unsubscribe. The zero Handle is never issued.
type Handle uint64

// DeliveredMessage is the immutable record handed to an accepting
// subscriber, per the external delivery contract.
type DeliveredMessage struct {
	Seqnum     uint32
	Flags      []string
	Date       time.Time
	HasDate    bool
	Subject    string
	From       []imapwire.Address
	Sender     []imapwire.Address
	ReplyTo    []imapwire.Address
	To         []imapwire.Address
	Cc         []imapwire.Address
	Bcc        []imapwire.Address
	InReplyTo  string
	MessageID  string
	Body       message.Body
}

// subscriberEntry pairs a subscription with its delivery worker: queue is
// fed non-blockingly from the session goroutine, stop tears the worker down
// on Unsubscribe or session close.
type subscriberEntry struct {
	handle Handle
	target Target
	filter filter.Filter
	queue  chan DeliveredMessage
	stop   chan struct{}
}

// startSubscriberWorker launches the goroutine that owns calling
// target.Deliver for one subscriber, decoupling delivery from the session
// goroutine entirely.
func startSubscriberWorker(target Target, queue chan DeliveredMessage, stop chan struct{}, log mlog.Log) {
	go func() {
		for {
			select {
			case dm := <-queue:
				deliverRecovering(target, dm, log)
			case <-stop:
				return
			}
		}
	}()
}

// enqueueDeliver hands dm to sub's worker without blocking the session
// goroutine: if the queue is full, the message is dropped for this
// subscriber and the subscriber remains registered.
func enqueueDeliver(sub subscriberEntry, dm DeliveredMessage, log mlog.Log) {
	select {
	case sub.queue <- dm:
	default:
		log.Info("dropping delivery: subscriber queue full", "handle", sub.handle, "seq", dm.Seqnum)
	}
}

// deliverRecovering calls target.Deliver, isolating the worker (and so the
// session) from a panicking Target.
func deliverRecovering(target Target, dm DeliveredMessage, log mlog.Log) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("subscriber delivery panicked", nil, "recovered", r)
		}
	}()
	target.Deliver(dm)
}

// subscribeReq/unsubscribeReq travel over the session's inbox channel so
// subscriber-list mutation happens only on the session goroutine, per the
// concurrency model.
type subscribeReq struct {
	target Target
	filter filter.Filter
	result chan Handle
}

type unsubscribeReq struct {
	handle Handle
	result chan error
}
