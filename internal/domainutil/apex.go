package domainutil

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	maxDomainLen = 253
	maxLabelLen  = 63
)

// Normalize 对域名进行规范化处理
// 规则：
//   - 小写、trim 空格、去掉末尾 .
//   - 去掉端口（如 example.com:443）
//   - 拒绝 IP、通配符、空 label
//   - 只允许 a-z 0-9 . -
func Normalize(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return "", fmt.Errorf("domain must not be empty")
	}
	if len(host) > maxDomainLen {
		return "", fmt.Errorf("domain is longer than %d characters", maxDomainLen)
	}
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return "", fmt.Errorf("IP address is not allowed as domain: %s", host)
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("domain must contain at least one dot: %s", host)
	}
	for _, label := range labels {
		if label == "" {
			return "", fmt.Errorf("domain has an empty label: %s", host)
		}
		if len(label) > maxLabelLen {
			return "", fmt.Errorf("domain label %q is longer than %d characters", label, maxLabelLen)
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "", fmt.Errorf("domain label must not start or end with '-': %s", label)
		}
		for _, r := range label {
			if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
				return "", fmt.Errorf("domain contains invalid character: %c in %s", r, host)
			}
		}
	}
	return host, nil
}

// EffectiveApex 使用 PSL 计算 eTLD+1
//   - www.example.com -> example.com
//   - a.b.example.co.uk -> example.co.uk
func EffectiveApex(domain string) (string, error) {
	normalized, err := Normalize(domain)
	if err != nil {
		return "", fmt.Errorf("normalize failed for %s: %w", domain, err)
	}

	apex, err := publicsuffix.EffectiveTLDPlusOne(normalized)
	if err != nil {
		return "", fmt.Errorf("PSL lookup failed for %s: %w", domain, err)
	}
	return apex, nil
}

// IsApex reports whether domain is its own registrable domain
func IsApex(domain string) (bool, error) {
	normalized, err := Normalize(domain)
	if err != nil {
		return false, err
	}
	apex, err := EffectiveApex(normalized)
	if err != nil {
		return false, err
	}
	return apex == normalized, nil
}

// SubdomainHost builds the platform hostname {slug}.{base}
func SubdomainHost(slug, baseDomain string) (string, error) {
	return Normalize(slug + "." + strings.TrimPrefix(baseDomain, "."))
}

// IsUnder reports whether domain equals base or is a subdomain of it
func IsUnder(domain, base string) bool {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	base = strings.TrimSuffix(strings.ToLower(base), ".")
	return domain == base || strings.HasSuffix(domain, "."+base)
}
