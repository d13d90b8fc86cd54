package viewcache

import (
	"context"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Topic names a kind of document whose mutations readers care about.
type Topic string

// Group names a cached read view.
type Group string

const (
	TopicEstimate          Topic = "estimate"
	TopicJobOrder          Topic = "job_order"
	TopicChangeOrder       Topic = "change_order"
	TopicInvoice           Topic = "invoice"
	TopicInvoicePayment    Topic = "invoice_payment"
	TopicPurchaseOrder     Topic = "purchase_order"
	TopicVendorBill        Topic = "vendor_bill"
	TopicVendorBillPayment Topic = "vendor_bill_payment"
	TopicTimeEntry         Topic = "time_entry"
	TopicPersonnel         Topic = "personnel"
	TopicCustomer          Topic = "customer"
	TopicVendor            Topic = "vendor"
	TopicAttachment        Topic = "attachment"
	TopicSync              Topic = "sync"
)

const (
	GroupEstimates       Group = "estimates"
	GroupJobOrders       Group = "job_orders"
	GroupJobOrderSummary Group = "job_order_summary"
	GroupChangeOrders    Group = "change_orders"
	GroupInvoices        Group = "invoices"
	GroupPurchaseOrders  Group = "purchase_orders"
	GroupVendorBills     Group = "vendor_bills"
	GroupTimeEntries     Group = "time_entries"
	GroupTimeSummary     Group = "time_summary"
	GroupPersonnel       Group = "personnel"
	GroupCustomers       Group = "customers"
	GroupVendors         Group = "vendors"
	GroupAttachments     Group = "attachments"
	GroupSyncStatus      Group = "sync_status"
)

// Publisher is what services call after a mutation commits.
type Publisher interface {
	Publish(ctx context.Context, orgID snowflake.ID, topics ...Topic)
}

// Invalidator maps document topics to the view groups derived from them.
type Invalidator struct {
	mu    sync.RWMutex
	cache *Cache
	log   *zap.Logger
	graph map[Topic]map[Group]struct{}
}

// NewInvalidator returns an invalidator with the default dependency graph.
func NewInvalidator(cache *Cache, log *zap.Logger) *Invalidator {
	if log == nil {
		log = zap.NewNop()
	}
	inv := &Invalidator{
		cache: cache,
		log:   log.Named("viewcache.invalidator"),
		graph: make(map[Topic]map[Group]struct{}),
	}

	inv.Subscribe(TopicEstimate, GroupEstimates)
	inv.Subscribe(TopicJobOrder, GroupJobOrders, GroupJobOrderSummary, GroupEstimates)
	inv.Subscribe(TopicChangeOrder, GroupChangeOrders, GroupJobOrderSummary)
	inv.Subscribe(TopicInvoice, GroupInvoices, GroupJobOrders, GroupChangeOrders, GroupJobOrderSummary, GroupEstimates)
	inv.Subscribe(TopicInvoicePayment, GroupInvoices, GroupJobOrderSummary)
	inv.Subscribe(TopicPurchaseOrder, GroupPurchaseOrders)
	inv.Subscribe(TopicVendorBill, GroupVendorBills, GroupPurchaseOrders)
	inv.Subscribe(TopicVendorBillPayment, GroupVendorBills)
	inv.Subscribe(TopicTimeEntry, GroupTimeEntries, GroupTimeSummary)
	inv.Subscribe(TopicPersonnel, GroupPersonnel, GroupTimeSummary)
	inv.Subscribe(TopicCustomer, GroupCustomers)
	inv.Subscribe(TopicVendor, GroupVendors)
	inv.Subscribe(TopicAttachment, GroupAttachments)
	inv.Subscribe(TopicSync, GroupSyncStatus)
	return inv
}

// Subscribe adds view groups that depend on topic.
func (i *Invalidator) Subscribe(topic Topic, groups ...Group) {
	i.mu.Lock()
	defer i.mu.Unlock()
	set, ok := i.graph[topic]
	if !ok {
		set = make(map[Group]struct{})
		i.graph[topic] = set
	}
	for _, g := range groups {
		set[g] = struct{}{}
	}
}

// GroupsFor returns the distinct groups affected by the topics, sorted.
func (i *Invalidator) GroupsFor(topics ...Topic) []Group {
	i.mu.RLock()
	defer i.mu.RUnlock()
	seen := make(map[Group]struct{})
	for _, topic := range topics {
		for g := range i.graph[topic] {
			seen[g] = struct{}{}
		}
	}
	out := make([]Group, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Publish invalidates every group subscribed to the topics. Failures are logged; a stale
// view expires on its TTL.
func (i *Invalidator) Publish(ctx context.Context, orgID snowflake.ID, topics ...Topic) {
	groups := i.GroupsFor(topics...)
	if len(groups) == 0 || i.cache == nil {
		return
	}
	if err := i.cache.Invalidate(ctx, orgID, groups...); err != nil {
		i.log.Warn("view invalidation failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}

// NopPublisher discards notifications.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, snowflake.ID, ...Topic) {}
