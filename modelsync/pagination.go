package modelsync

import (
	"context"
	"slices"
	"sync"
)

type Identified interface {
	GetId() int64
}

// `{data, totalCount, totalPages}`
type Page[T any] struct {
	Data       []T `json:"data"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

func (self *Page[T]) Clone() *Page[T] {
	return &Page[T]{
		Data:       slices.Clone(self.Data),
		TotalCount: self.TotalCount,
		TotalPages: self.TotalPages,
	}
}

type PageFetchFunction[T any] func(ctx context.Context, page int, perPage int) (*Page[T], error)

// PageCache keeps one fetched page consistent with inserts and replaces
// that arrive from a live channel.
type PageCache[T Identified] struct {
	fetch PageFetchFunction[T]

	stateLock  sync.Mutex
	page       *Page[T]
	pageNumber int
	perPage    int
}

func NewPageCache[T Identified](perPage int, fetch PageFetchFunction[T]) *PageCache[T] {
	return &PageCache[T]{
		fetch:      fetch,
		pageNumber: 1,
		perPage:    perPage,
	}
}

// pages are 1-based
func (self *PageCache[T]) Fetch(ctx context.Context, pageNumber int) error {
	perPage := func() int {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.pageNumber = pageNumber
		return self.perPage
	}()

	page, err := self.fetch(ctx, pageNumber, perPage)
	if err != nil {
		return err
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.pageNumber == pageNumber {
		self.page = page
	}
	return nil
}

func (self *PageCache[T]) Refetch(ctx context.Context) error {
	return self.Fetch(ctx, self.PageNumber())
}

func (self *PageCache[T]) SetPage(pageNumber int, page *Page[T]) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.pageNumber = pageNumber
	self.page = page
}

func (self *PageCache[T]) SetPerPage(perPage int) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.perPage = perPage
}

// a copy of the current page, nil before the first fetch
func (self *PageCache[T]) Page() *Page[T] {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.page == nil {
		return nil
	}
	return self.page.Clone()
}

func (self *PageCache[T]) PageNumber() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.pageNumber
}

// On page 1 the item is prepended and the page trimmed to size.
// On any other page the current page is fetched again.
// An item already on the page is overwritten in place.
func (self *PageCache[T]) InsertAtTop(ctx context.Context, item T) error {
	inserted := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.page == nil {
			return true
		}
		if i := self.indexOf(item); 0 <= i {
			self.page.Data[i] = item
			return true
		}
		if self.pageNumber != 1 {
			return false
		}
		data := make([]T, 0, len(self.page.Data)+1)
		data = append(data, item)
		data = append(data, self.page.Data...)
		if 0 < self.perPage && self.perPage < len(data) {
			data = data[:self.perPage]
		}
		self.page.Data = data
		self.page.TotalCount += 1
		if 0 < self.perPage {
			self.page.TotalPages = (self.page.TotalCount + self.perPage - 1) / self.perPage
		}
		return true
	}()
	if inserted {
		return nil
	}
	return self.Refetch(ctx)
}

// overwrites the item with the same id in place. Returns false if the id is not on the page.
func (self *PageCache[T]) Replace(item T) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.page == nil {
		return false
	}
	i := self.indexOf(item)
	if i < 0 {
		return false
	}
	self.page.Data[i] = item
	return true
}

func (self *PageCache[T]) indexOf(item T) int {
	return slices.IndexFunc(self.page.Data, func(existing T) bool {
		return existing.GetId() == item.GetId()
	})
}
