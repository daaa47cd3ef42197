package security

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempiemail/backend/internal/domain"
)

const testAddress = "swift-fox482@disposable.email"

func newTestFilter() *Filter {
	return NewFilter(Config{
		MaxMessageBytes: 1 << 20,
		MaxPerHour:      50,
		MaxLinks:        10,
		BlockedDomains:  []string{"spam.com", "malware.com"},
	}, nil)
}

func TestFilter_AdmitsCleanMessage(t *testing.T) {
	f := newTestFilter()

	v := f.Admit(testAddress, []byte("From: a@b.com\nSubject: Hi\n\nHello"))

	assert.True(t, v.Admitted, v.String())
	assert.Equal(t, uint64(1), f.Stats().Admitted)
}

func TestFilter_Rejections(t *testing.T) {
	links := make([]string, 11)
	for i := range links {
		links[i] = fmt.Sprintf("https://example.org/%d", i)
	}

	tests := []struct {
		name   string
		raw    string
		reason Reason
	}{
		{"垃圾词汇", "From: a@b.com\nSubject: Hi\n\nbuy viagra today", ReasonSpamContent},
		{"主题中的垃圾词汇", "From: a@b.com\nSubject: You won the LOTTERY\n\nhello", ReasonSpamContent},
		{"可疑头部", "From: a@b.com\nX-Spam-Flag: YES\nSubject: Hi\n\nHello", ReasonSuspiciousHeader},
		{"黑名单发件域名", "From: Bad <bad@spam.com>\nSubject: Hi\n\nHello", ReasonBlockedSender},
		{"黑名单子域名", "From: bad@mx.malware.com\nSubject: Hi\n\nHello", ReasonBlockedSender},
		{"链接过多", "From: a@b.com\nSubject: Hi\n\n" + strings.Join(links, " "), ReasonExcessiveLinks},
		{"危险附件", strings.Join([]string{
			"From: a@b.com",
			"Subject: Hi",
			`Content-Type: multipart/mixed; boundary="b"`,
			"",
			"--b",
			"Content-Type: text/plain",
			"",
			"see attached",
			"--b",
			"Content-Type: application/octet-stream",
			`Content-Disposition: attachment; filename="setup.EXE"`,
			"",
			"MZ",
			"--b--",
		}, "\r\n"), ReasonDangerousAttachment},
		{"脚本标签", "From: a@b.com\nSubject: Hi\n\n<p>hi</p><script>alert(1)</script>", ReasonMarkupInjection},
		{"内联事件属性", "From: a@b.com\nSubject: Hi\n\n<img src=x onerror=\"x()\">", ReasonMarkupInjection},
		{"脚本调用", "From: a@b.com\nSubject: Hi\n\nplease run eval(payload) now", ReasonScriptInjection},
		{"Function 构造调用", "From: a@b.com\nSubject: Hi\n\nnew FUNCTION('return 1')", ReasonScriptInjection},
		{"document.write", "From: a@b.com\nSubject: Hi\n\ndocument.write('x')", ReasonScriptInjection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFilter()
			v := f.Admit(testAddress, []byte(tt.raw))
			assert.False(t, v.Admitted)
			assert.Equal(t, tt.reason, v.Reason, v.String())
		})
	}
}

func TestFilter_ContentInAnyBodyPart(t *testing.T) {
	multipart := func(parts ...string) string {
		lines := []string{"From: a@b.com", "Subject: Hi", `Content-Type: multipart/mixed; boundary="b"`, ""}
		for _, part := range parts {
			lines = append(lines, "--b", part)
		}
		return strings.Join(append(lines, "--b--", ""), "\r\n")
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"非标准文本类型", "From: a@b.com\r\nSubject: Hi\r\nContent-Type: text/x-custom\r\n\r\nbuy viagra now"},
		{"无文件名的二进制类型", "From: a@b.com\r\nSubject: Hi\r\nContent-Type: application/octet-stream\r\n\r\nbuy viagra now"},
		{"第二个纯文本部分", multipart(
			"Content-Type: text/plain\r\n\r\nhello",
			"Content-Type: text/plain\r\n\r\nbuy viagra now",
		)},
		{"第二个 HTML 部分", multipart(
			"Content-Type: text/html\r\n\r\n<p>hello</p>",
			"Content-Type: text/html\r\n\r\n<p>buy viagra now</p>",
		)},
		{"base64 编码的文本部分", multipart(
			"Content-Type: text/plain\r\n\r\nhello",
			"Content-Type: text/enriched\r\nContent-Transfer-Encoding: base64\r\n\r\nYnV5IHZpYWdyYSBub3c=",
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFilter()
			v := f.Admit(testAddress, []byte(tt.raw))
			assert.False(t, v.Admitted)
			assert.Equal(t, ReasonSpamContent, v.Reason, v.String())
		})
	}
}

func TestFilter_AttachmentBodyNotScanned(t *testing.T) {
	f := newTestFilter()
	raw := strings.Join([]string{
		"From: a@b.com",
		"Subject: Hi",
		`Content-Type: multipart/mixed; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain",
		"",
		"notes attached",
		"--b",
		"Content-Type: text/plain",
		`Content-Disposition: attachment; filename="notes.txt"`,
		"Content-Transfer-Encoding: base64",
		"",
		"YnV5IHZpYWdyYSBub3c=",
		"--b--",
		"",
	}, "\r\n")

	v := f.Admit(testAddress, []byte(raw))
	assert.True(t, v.Admitted, v.String())
}

func TestFilter_SizeCheckedFirst(t *testing.T) {
	f := NewFilter(Config{MaxMessageBytes: 16}, nil)

	v := f.Admit(testAddress, []byte("Subject: viagra\n\n0123456789"))

	assert.Equal(t, ReasonTooLarge, v.Reason)
	assert.Equal(t, 0, f.Stats().ActiveRateCounters, "oversized mail never reaches the rate counter")
}

func TestFilter_RateLimitWindow(t *testing.T) {
	f := newTestFilter()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.SetClock(func() time.Time { return now })

	clean := []byte("From: a@b.com\nSubject: Hi\n\nHello")
	for i := 0; i < 50; i++ {
		require.True(t, f.Admit(testAddress, clean).Admitted, "message %d", i+1)
	}

	v := f.Admit(testAddress, clean)
	assert.Equal(t, ReasonRateLimited, v.Reason)

	assert.True(t, f.Admit("other@disposable.email", clean).Admitted, "counters are per address")

	now = now.Add(time.Hour + time.Second)
	assert.True(t, f.Admit(testAddress, clean).Admitted, "window reset")
}

func TestFilter_RateLimitCountsSpam(t *testing.T) {
	f := NewFilter(Config{MaxPerHour: 2}, nil)

	f.Admit(testAddress, []byte("Subject: viagra\n\nx"))
	f.Admit(testAddress, []byte("Subject: casino\n\nx"))

	v := f.Admit(testAddress, []byte("Subject: Hi\n\nHello"))
	assert.Equal(t, ReasonRateLimited, v.Reason)
}

func TestFilter_RateLimitConcurrent(t *testing.T) {
	f := NewFilter(Config{MaxPerHour: 20}, nil)
	clean := []byte("Subject: Hi\n\nHello")

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Admit(testAddress, clean).Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, admitted)
}

func TestFilter_PruneRateCounters(t *testing.T) {
	f := newTestFilter()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.SetClock(func() time.Time { return now })

	f.Admit("a@x.io", []byte("Subject: Hi\n\nHello"))
	now = now.Add(90 * time.Minute)
	f.Admit("b@x.io", []byte("Subject: Hi\n\nHello"))

	assert.Equal(t, 0, f.PruneRateCounters(now))
	assert.Equal(t, 1, f.PruneRateCounters(now.Add(90*time.Minute)))
	assert.Equal(t, 1, f.Stats().ActiveRateCounters)
}

func TestFilter_FailsClosed(t *testing.T) {
	f := newTestFilter()
	f.checks = append([]check{{ReasonSpamContent, func(*Filter, *inspection) (string, bool) {
		panic("broken rule")
	}}}, f.checks...)

	v := f.Admit(testAddress, []byte("Subject: Hi\n\nHello"))

	assert.False(t, v.Admitted)
	assert.Equal(t, ReasonInternal, v.Reason)
	assert.Equal(t, uint64(1), f.Stats().RejectedByReason[ReasonInternal])

	// 锁已释放，后续修改不会阻塞
	require.NoError(t, f.AddBlockedDomain("evil.org"))
}

func TestFilter_Deterministic(t *testing.T) {
	f := NewFilter(Config{MaxPerHour: 1000}, nil)
	raw := []byte("From: a@b.com\nSubject: offer\n\nan exclusive offer for you")

	first := f.Admit(testAddress, raw)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.Admit(testAddress, raw))
	}
	assert.Equal(t, ReasonSpamContent, first.Reason)
}

func TestFilter_BlockedDomainMutation(t *testing.T) {
	f := newTestFilter()
	raw := []byte("From: x@shady.biz\nSubject: Hi\n\nHello")

	require.True(t, f.Admit(testAddress, raw).Admitted)

	require.NoError(t, f.AddBlockedDomain("Shady.BIZ"))
	assert.Contains(t, f.BlockedDomains(), "shady.biz")
	assert.Equal(t, ReasonBlockedSender, f.Admit(testAddress, raw).Reason)

	assert.True(t, f.RemoveBlockedDomain("shady.biz"))
	assert.False(t, f.RemoveBlockedDomain("shady.biz"))
	assert.True(t, f.Admit(testAddress, raw).Admitted)

	assert.ErrorIs(t, f.AddBlockedDomain("not a domain"), domain.ErrInvalid)
}

func TestFilter_PatternMutation(t *testing.T) {
	f := newTestFilter()
	raw := []byte("Subject: Hi\n\ncheap watches here")

	require.True(t, f.Admit(testAddress, raw).Admitted)

	require.NoError(t, f.AddPattern(`cheap\s+watches`))
	require.NoError(t, f.AddPattern(`cheap\s+watches`))
	assert.Equal(t, len(defaultSpamPatterns)+1, f.Stats().SpamPatterns)
	assert.Equal(t, ReasonSpamContent, f.Admit(testAddress, raw).Reason)

	assert.True(t, f.RemovePattern(`cheap\s+watches`))
	assert.True(t, f.Admit(testAddress, raw).Admitted)

	assert.ErrorIs(t, f.AddPattern("("), domain.ErrInvalid)
	assert.ErrorIs(t, f.AddPattern("  "), domain.ErrInvalid)

	require.NoError(t, f.AddPattern(" cheap "))
	assert.True(t, f.RemovePattern(" cheap "), "surrounding whitespace is ignored on both sides")
	assert.False(t, f.RemovePattern("cheap"))
}

func TestFilter_ConcurrentMutationAndAdmit(t *testing.T) {
	f := NewFilter(Config{MaxPerHour: 10000}, nil)
	raw := []byte("From: a@b.com\nSubject: Hi\n\nHello")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = f.AddBlockedDomain(fmt.Sprintf("d%d.example.com", i))
			f.RemoveBlockedDomain(fmt.Sprintf("d%d.example.com", i))
		}(i)
		go func() {
			defer wg.Done()
			f.Admit(testAddress, raw)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(20), f.Stats().Admitted)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "admitted", Admit().String())
	assert.Equal(t, "rejected: too_large", Reject(ReasonTooLarge, "").String())
	assert.Equal(t, "rejected: spam_content (matched x)", Reject(ReasonSpamContent, "matched x").String())
}
