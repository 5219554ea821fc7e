package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lastline-erp/lastline-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "lastline-prod"}

	assert.Equal(t, "projects/lastline-prod/topics/ll-requisition-events", c.topicResourceName("ll-requisition-events"))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Equal(t, "", c.topicResourceName("  "))

	empty := &Client{}
	assert.Equal(t, "", empty.topicResourceName("topic"))
}

func TestTopicNamesDeduplicate(t *testing.T) {
	cfg := config.PubSubConfig{
		RequisitionTopic: "events",
		AllocationTopic:  " events ",
	}
	assert.Equal(t, []string{"events"}, topicNames(cfg))
	assert.Empty(t, topicNames(config.PubSubConfig{}))
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("topic"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}
