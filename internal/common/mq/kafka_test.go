package mq

import (
	"testing"
	"time"
)

func TestToKafkaMessageCarriesKeyAndHeaders(t *testing.T) {
	msg := NewMessage([]byte(`{"score":97}`))
	msg.Key = "alice"
	msg.ID = "sub-1"
	msg.Timestamp = time.UnixMilli(1700000000000)
	msg.SetHeader("event", "submission.finalized")

	km := toKafkaMessage("contest.results", msg)
	if km.Topic != "contest.results" {
		t.Fatalf("unexpected topic %s", km.Topic)
	}
	if string(km.Key) != "alice" {
		t.Fatalf("unexpected key %s", km.Key)
	}
	headers := map[string]string{}
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "submission.finalized" || headers[headerID] != "sub-1" {
		t.Fatalf("unexpected headers %v", headers)
	}
	if headers[headerTimestamp] != "1700000000000" {
		t.Fatalf("unexpected timestamp header %s", headers[headerTimestamp])
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
