package chat

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/levenlabs/go-llog"
)

// QueueAdapter is the queue-pull Chat Adapter variant: it long-polls an
// SQS queue instead of binding an HTTP listener, treating each message
// body as the same envelope the webhook variant receives. Grounded on
// spec.md §6's sqs/sqs_region config fields.
type QueueAdapter struct {
	api      API
	sqsAPI   *sqs.SQS
	queueURL string
}

// NewQueueAdapter builds a QueueAdapter polling queueURL in region.
func NewQueueAdapter(api API, region, queueURL string) (*QueueAdapter, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return &QueueAdapter{api: api, sqsAPI: sqs.New(sess), queueURL: queueURL}, nil
}

// Run implements Adapter, long-polling until ctx is canceled.
func (q *QueueAdapter) Run(ctx context.Context, out chan<- InboundMessage) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		result, err := q.sqsAPI.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: aws.Int64(10),
			WaitTimeSeconds:     aws.Int64(20), // long poll
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			llog.Error("error polling chat queue", llog.ErrKV(err), llog.KV{"queueURL": q.queueURL})
			continue
		}

		for _, m := range result.Messages {
			q.handle(ctx, m, out)
		}
	}
}

func (q *QueueAdapter) handle(ctx context.Context, m *sqs.Message, out chan<- InboundMessage) {
	var env webhookEnvelope
	if err := json.Unmarshal([]byte(aws.StringValue(m.Body)), &env); err != nil {
		llog.Warn("malformed queue envelope", llog.ErrKV(err))
		q.delete(ctx, m)
		return
	}

	msg, err := q.api.ResolveMessage(env.MessageID)
	if err != nil {
		llog.Error("error resolving queued message", llog.ErrKV(err), llog.KV{"messageID": env.MessageID})
		q.delete(ctx, m)
		return
	}
	if msg.ChatID != q.api.OwnChatID() {
		out <- msg
	}
	q.delete(ctx, m)
}

func (q *QueueAdapter) delete(ctx context.Context, m *sqs.Message) {
	_, err := q.sqsAPI.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		llog.Error("error deleting processed queue message", llog.ErrKV(err))
	}
}
