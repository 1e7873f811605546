package storage

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	logx "tailbot/pkg/logx"
)

// fakeDynamo keeps items in memory and answers the three calls the store
// makes. Query assumes the timeline partition and sorts by sk.
type fakeDynamo struct {
	items map[string]map[string]*dynamodb.AttributeValue // pk+"|"+sk -> item
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]*dynamodb.AttributeValue{}}
}

func itemKey(item map[string]*dynamodb.AttributeValue) string {
	return *item["pk"].S + "|" + *item["sk"].S
}

func (f *fakeDynamo) TransactWriteItemsWithContext(_ aws.Context, in *dynamodb.TransactWriteItemsInput, _ ...request.Option) (*dynamodb.TransactWriteItemsOutput, error) {
	for _, t := range in.TransactItems {
		if t.Put == nil {
			continue
		}
		f.items[itemKey(t.Put.Item)] = t.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) QueryWithContext(_ aws.Context, in *dynamodb.QueryInput, _ ...request.Option) (*dynamodb.QueryOutput, error) {
	pk := *in.ExpressionAttributeValues[":pk"].S
	var keys []string
	for k := range f.items {
		if len(k) > len(pk) && k[:len(pk)+1] == pk+"|" {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	limit := len(keys)
	if in.Limit != nil && int(*in.Limit) < limit {
		limit = int(*in.Limit)
	}
	out := &dynamodb.QueryOutput{}
	for _, k := range keys[:limit] {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func TestDynamoStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := newFakeDynamo()
	st := &dynamoStore{client: fake, table: "tailbot", log: logx.Nop()}

	base := time.Date(2023, 1, 2, 12, 0, 0, 0, time.UTC)
	first := PostedFlight{Flight: testFlight("02-Jan-2023"), PostID: "p1", PostedAt: base}
	second := PostedFlight{Flight: testFlight("03-Jan-2023"), PostID: "p2", PostedAt: base.Add(time.Hour)}
	if err := st.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := st.Record(ctx, second); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ok, err := st.WasPosted(ctx, first.Key())
	if err != nil || !ok {
		t.Fatalf("WasPosted(recorded) = %v, %v", ok, err)
	}
	ok, err = st.WasPosted(ctx, testFlight("09-Sep-2023").Key())
	if err != nil || ok {
		t.Fatalf("WasPosted(unknown) = %v, %v", ok, err)
	}

	last, err := st.LastPosted(ctx)
	if err != nil {
		t.Fatalf("LastPosted: %v", err)
	}
	if last == nil || last.PostID != "p2" || last.Flight.Date != "03-Jan-2023" {
		t.Fatalf("LastPosted = %+v", last)
	}
	if !last.PostedAt.Equal(second.PostedAt) {
		t.Fatalf("PostedAt = %v, want %v", last.PostedAt, second.PostedAt)
	}

	recent, err := st.RecentPosted(ctx, 1)
	if err != nil {
		t.Fatalf("RecentPosted: %v", err)
	}
	if len(recent) != 1 || recent[0].PostID != "p2" {
		t.Fatalf("RecentPosted = %+v", recent)
	}
}

func TestDynamoOpenRequiresTable(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "dynamodb"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing table")
	}
}
