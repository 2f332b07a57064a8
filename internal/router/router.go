// Package router chooses which corpora a query should be answered from. It
// prompts an LLM with a fixed enumeration of corpora and asks for a JSON
// object naming the relevant ones, falling back to a safe default when the
// LLM is unavailable or returns nothing usable.
package router

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"campusqa/internal/llmclient"
)

// Corpus is the set of known corpus keys, in the router prompt's display
// order.
var Corpus = []string{"notices", "rules", "schedule", "courses", "staff"}

// Descriptions is the one-line description of each corpus shown to the LLM.
var Descriptions = map[string]string{
	"notices":  "학교 공지사항, 행사, 안내문",
	"rules":    "학칙, 규정, 내규 등 공식 규정 문서",
	"schedule": "학사일정, 수강신청·등록·방학 등 일정",
	"courses":  "개설 과목, 강의 계획, 전공 교과목 정보",
	"staff":    "교직원 연락처, 부서, 담당 업무",
}

// DefaultRoute is returned whenever the LLM call fails or yields nothing
// usable; routing failures are absorbed here, never surfaced to the caller.
var DefaultRoute = []string{"notices"}

// Router selects corpora for a query, caching recent decisions.
type Router struct {
	client llmclient.Client

	mu    sync.Mutex
	cache map[string]*list.Element
	order *list.List
	cap   int
}

type cacheEntry struct {
	query  string
	routes []string
}

// New builds a Router backed by client, caching up to capacity recent
// query→routes decisions. A non-positive capacity disables the cache.
func New(client llmclient.Client, capacity int) *Router {
	return &Router{
		client: client,
		cache:  make(map[string]*list.Element),
		order:  list.New(),
		cap:    capacity,
	}
}

type routeChoice struct {
	Names []string `json:"names"`
}

const routerSystemPrompt = `사용자의 질문을 분석하여 가장 관련 있는 데이터셋으로 라우팅하는 역할을 수행합니다.
질문에 답변하기 위해 참조해야 할 가장 적절한 데이터셋을 하나 이상 선택하세요.
선택된 데이터셋의 이름만 포함하는 JSON 객체를 다음 형식으로 출력하세요: {"names": ["corpus", ...]}
다른 설명 없이 JSON만 출력하세요.`

// Route returns the ordered, non-empty subset of known corpora that should
// be consulted to answer query. It never invents a corpus name and never
// returns an empty slice.
func (r *Router) Route(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return DefaultRoute, nil
	}

	if routes, ok := r.lookup(query); ok {
		return routes, nil
	}

	if r.client == nil {
		return DefaultRoute, nil
	}

	userMsg := fmt.Sprintf("사용 가능한 데이터셋:\n%s\n\n사용자 질문:\n%s", formatDestinations(), query)
	resp, err := r.client.Complete(ctx, routerSystemPrompt, nil, userMsg)
	if err != nil {
		return DefaultRoute, nil
	}

	routes := parseRoutes(resp)
	if len(routes) == 0 {
		return DefaultRoute, nil
	}
	r.store(query, routes)
	return routes, nil
}

func formatDestinations() string {
	var b strings.Builder
	for _, c := range Corpus {
		fmt.Fprintf(&b, "- %s: %s\n", c, Descriptions[c])
	}
	return b.String()
}

// parseRoutes extracts the JSON object from resp (tolerating surrounding
// prose some LLMs add despite instructions) and filters to known corpora,
// preserving the LLM's ordering and dropping invented names.
func parseRoutes(resp string) []string {
	start := strings.IndexByte(resp, '{')
	end := strings.LastIndexByte(resp, '}')
	if start < 0 || end < start {
		return nil
	}
	var choice routeChoice
	if err := json.Unmarshal([]byte(resp[start:end+1]), &choice); err != nil {
		return nil
	}
	known := make(map[string]bool, len(Corpus))
	for _, c := range Corpus {
		known[c] = true
	}
	out := make([]string, 0, len(choice.Names))
	for _, name := range choice.Names {
		if known[name] {
			out = append(out, name)
		}
	}
	return out
}

func (r *Router) lookup(query string) ([]string, bool) {
	if r.cap <= 0 {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.cache[query]
	if !ok {
		return nil, false
	}
	r.order.MoveToFront(el)
	return append([]string(nil), el.Value.(*cacheEntry).routes...), true
}

func (r *Router) store(query string, routes []string) {
	if r.cap <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.cache[query]; ok {
		el.Value.(*cacheEntry).routes = routes
		r.order.MoveToFront(el)
		return
	}
	el := r.order.PushFront(&cacheEntry{query: query, routes: routes})
	r.cache[query] = el
	if r.order.Len() > r.cap {
		oldest := r.order.Back()
		if oldest != nil {
			r.order.Remove(oldest)
			delete(r.cache, oldest.Value.(*cacheEntry).query)
		}
	}
}
