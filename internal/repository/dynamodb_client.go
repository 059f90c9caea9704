package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tribu-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skState     = "STATE#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL

	// sortableTime keeps a fixed width so sort keys order chronologically.
	sortableTime = "2006-01-02T15:04:05.000000000Z"
)

// ErrConflict is returned when another request updated the session first.
var ErrConflict = errors.New("repository: session was modified concurrently")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a DynamoDB table holding conversation sessions.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// msgPrefix scopes transcript items to one conversation generation.
func msgPrefix(generation int) string {
	return fmt.Sprintf("%s%06d#", skPrefixMsg, generation)
}

// msgSK returns the sort key for a transcript message.
func msgSK(generation int, ts time.Time) string {
	return msgPrefix(generation) + ts.UTC().Format(sortableTime)
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// NewSession returns an empty, unsaved session record.
func NewSession(sessionID string) domain.Session {
	return domain.Session{
		PK:        sessionPK(sessionID),
		SK:        skState,
		SessionID: sessionID,
		State:     domain.ConversationState{Entities: domain.EntitySet{}},
	}
}

// GetSession loads a session. The boolean is false when none exists.
func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}
	s, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: GetSession decode: %w", err)
	}
	return s, true, nil
}

// SaveTurn writes the session state and transcript messages in one
// transaction. The write only succeeds if the stored version still equals
// s.Version; on success the returned session carries the new version.
func (c *Client) SaveTurn(ctx context.Context, s domain.Session, messages []domain.ChatMessage) (domain.Session, error) {
	if s.SessionID == "" {
		return domain.Session{}, errors.New("repository: SaveTurn: session id is required")
	}
	next := c.advance(s)

	items := make([]types.TransactWriteItem, 0, len(messages)+1)
	items = append(items, types.TransactWriteItem{Put: c.statePut(next, s.Version)})

	base := c.now().UTC()
	for i, m := range messages {
		msg := domain.TranscriptMessage{
			PK:         next.PK,
			SK:         msgSK(next.Generation, base.Add(time.Duration(i)*time.Microsecond)),
			SessionID:  next.SessionID,
			Generation: next.Generation,
			Role:       m.Role,
			Content:    m.Content,
			TTL:        next.TTL,
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                messageItem(msg),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if isConditionFailure(err) {
			return domain.Session{}, fmt.Errorf("repository: SaveTurn: %w", ErrConflict)
		}
		return domain.Session{}, fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return next, nil
}

// ResetSession starts a new conversation generation with empty state. The
// previous generation's transcript is left to expire.
func (c *Client) ResetSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	if s.SessionID == "" {
		return domain.Session{}, errors.New("repository: ResetSession: session id is required")
	}
	fresh := s
	fresh.PK = sessionPK(s.SessionID)
	fresh.SK = skState
	fresh.Generation = s.Generation + 1
	fresh.State = domain.ConversationState{Entities: domain.EntitySet{}}
	next := c.advance(fresh)

	put := c.statePut(next, s.Version)
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		if isConditionFailure(err) {
			return domain.Session{}, fmt.Errorf("repository: ResetSession: %w", ErrConflict)
		}
		return domain.Session{}, fmt.Errorf("repository: ResetSession: %w", err)
	}
	return next, nil
}

// GetTranscript returns up to limit of the most recent messages of a
// conversation generation, in chronological order.
func (c *Client) GetTranscript(ctx context.Context, sessionID string, generation, limit int) ([]domain.ChatMessage, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: msgPrefix(generation)},
		},
		// Read newest first so LIMIT favors the most recent messages.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetTranscript query: %w", err)
	}

	msgs := make([]domain.ChatMessage, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetTranscript unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	// Reverse to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (c *Client) advance(s domain.Session) domain.Session {
	next := s
	next.PK = sessionPK(s.SessionID)
	next.SK = skState
	next.Version = s.Version + 1
	next.LastActivity = c.now().UTC().Format(time.RFC3339)
	next.TTL = c.ttlValue()
	return next
}

// statePut builds the conditional put of a state item. A zero expected
// version means the item must not exist yet.
func (c *Client) statePut(s domain.Session, expectedVersion int) *types.Put {
	put := &types.Put{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(s),
	}
	if expectedVersion == 0 {
		put.ConditionExpression = aws.String("attribute_not_exists(PK)")
		return put
	}
	put.ConditionExpression = aws.String("version = :expected")
	put.ExpressionAttributeValues = map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedVersion)},
	}
	return put
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func sessionItem(s domain.Session) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: s.PK},
		"SK":           &types.AttributeValueMemberS{Value: s.SK},
		"sessionId":    &types.AttributeValueMemberS{Value: s.SessionID},
		"generation":   &types.AttributeValueMemberN{Value: strconv.Itoa(s.Generation)},
		"step":         &types.AttributeValueMemberN{Value: strconv.Itoa(s.State.Step)},
		"entities":     entitiesAttr(s.State.Entities),
		"complete":     &types.AttributeValueMemberBOOL{Value: s.State.Complete},
		"submitted":    &types.AttributeValueMemberBOOL{Value: s.State.Submitted},
		"version":      &types.AttributeValueMemberN{Value: strconv.Itoa(s.Version)},
		"lastActivity": &types.AttributeValueMemberS{Value: s.LastActivity},
		"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(s.TTL, 10)},
	}
}

func messageItem(m domain.TranscriptMessage) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: m.PK},
		"SK":         &types.AttributeValueMemberS{Value: m.SK},
		"sessionId":  &types.AttributeValueMemberS{Value: m.SessionID},
		"generation": &types.AttributeValueMemberN{Value: strconv.Itoa(m.Generation)},
		"role":       &types.AttributeValueMemberS{Value: m.Role},
		"content":    &types.AttributeValueMemberS{Value: m.Content},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(m.TTL, 10)},
	}
}

func entitiesAttr(s domain.EntitySet) *types.AttributeValueMemberM {
	m := make(map[string]types.AttributeValue, len(s))
	for _, c := range domain.Categories {
		tags, ok := s[c]
		if !ok {
			continue
		}
		list := make([]types.AttributeValue, 0, len(tags))
		for _, t := range tags {
			list = append(list, &types.AttributeValueMemberS{Value: t})
		}
		m[string(c)] = &types.AttributeValueMemberL{Value: list}
	}
	return &types.AttributeValueMemberM{Value: m}
}

// itemToSession converts a DynamoDB attribute map to a Session.
func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Session{}, err
	}
	sessionID, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.Session{}, err
	}
	generation, err := intAttr(item, "generation")
	if err != nil {
		return domain.Session{}, err
	}
	step, err := intAttr(item, "step")
	if err != nil {
		return domain.Session{}, err
	}
	version, err := intAttr(item, "version")
	if err != nil {
		return domain.Session{}, err
	}
	entities, err := entitiesFromAttr(item, "entities")
	if err != nil {
		return domain.Session{}, err
	}
	lastActivity, _ := strAttr(item, "lastActivity") // allow empty
	ttl, _ := intAttr(item, "ttl")                    // allow empty

	return domain.Session{
		PK:         pk,
		SK:         skState,
		SessionID:  sessionID,
		Generation: generation,
		State: domain.ConversationState{
			Step:      step,
			Entities:  entities,
			Complete:  boolAttr(item, "complete"),
			Submitted: boolAttr(item, "submitted"),
		},
		Version:      version,
		LastActivity: lastActivity,
		TTL:          int64(ttl),
	}, nil
}

// itemToMessage converts a DynamoDB attribute map to a transcript message.
func itemToMessage(item map[string]types.AttributeValue) (domain.ChatMessage, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{Role: role, Content: content}, nil
}

func entitiesFromAttr(item map[string]types.AttributeValue, key string) (domain.EntitySet, error) {
	out := domain.EntitySet{}
	v, ok := item[key]
	if !ok {
		return out, nil
	}
	m, ok := v.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a map", key)
	}
	for name, raw := range m.Value {
		c := domain.Category(name)
		if !c.Valid() {
			return nil, fmt.Errorf("repository: unknown category %q", name)
		}
		list, ok := raw.(*types.AttributeValueMemberL)
		if !ok {
			return nil, fmt.Errorf("repository: category %q is not a list", name)
		}
		tags := make([]string, 0, len(list.Value))
		for _, el := range list.Value {
			s, ok := el.(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("repository: category %q holds a non-string tag", name)
			}
			tags = append(tags, s.Value)
		}
		out[c] = tags
	}
	return out, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	b, ok := item[key].(*types.AttributeValueMemberBOOL)
	return ok && b.Value
}
