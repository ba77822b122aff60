// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"agent-platform/internal/tool"
)

// orderedObject 解析过程中的映射，保留键的出现顺序；对外暴露前转换为 map[string]any
type orderedObject []tool.Arg

func (o orderedObject) get(key string) (any, bool) {
	for i := len(o) - 1; i >= 0; i-- {
		if o[i].Name == key {
			return o[i].Value, true
		}
	}
	return nil, false
}

// plain 把 orderedObject 递归转换成 map[string]any
func plain(v any) any {
	switch x := v.(type) {
	case orderedObject:
		m := make(map[string]any, len(x))
		for _, a := range x {
			m[a.Name] = plain(a.Value)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// literalParser 只识别字面量的递归下降解析器：字符串、数字、布尔、None、列表、元组、字典。
// 标识符（除 True/False/None）、属性访问、嵌套调用和运算符一律拒绝。
type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) eof() bool { return p.pos >= len(p.src) }

func (p *literalParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		case '\\':
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == '\n' {
				p.pos += 2
				continue
			}
			return
		default:
			return
		}
	}
}

func (p *literalParser) consume(c byte) bool {
	p.skipSpace()
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *literalParser) ident() (string, bool) {
	p.skipSpace()
	start := p.pos
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if r == '_' || unicode.IsLetter(r) || (p.pos > start && unicode.IsDigit(r)) {
			p.pos += size
			continue
		}
		break
	}
	return p.src[start:p.pos], p.pos > start
}

// parseFunctionCall 解析 Name(k=v, ...) 或 [Name(k=v), ...]；返回第一个调用与被丢弃的调用数
func parseFunctionCall(src string) (*tool.Call, int, error) {
	p := &literalParser{src: src}
	bracketed := p.consume('[')
	var calls []*tool.Call
	for {
		if bracketed && p.consume(']') {
			p.pos--
			break
		}
		c, err := p.call()
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, c)
		if bracketed && p.consume(',') {
			continue
		}
		break
	}
	if bracketed && !p.consume(']') {
		return nil, 0, p.errorf("expected ']'")
	}
	p.skipSpace()
	if !p.eof() {
		return nil, 0, p.errorf("unexpected trailing input %q", p.src[p.pos:])
	}
	if len(calls) == 0 {
		return nil, 0, nil
	}
	return calls[0], len(calls) - 1, nil
}

func (p *literalParser) call() (*tool.Call, error) {
	name, ok := p.ident()
	if !ok {
		return nil, p.errorf("expected a function name")
	}
	if isLiteralName(name) {
		return nil, p.errorf("%s is not callable", name)
	}
	p.skipSpace()
	if p.peek() == '.' {
		return nil, p.errorf("attribute access is not allowed")
	}
	if !p.consume('(') {
		return nil, p.errorf("expected '(' after %s", name)
	}
	c := &tool.Call{Name: name}
	for {
		if p.consume(')') {
			return c, nil
		}
		key, ok := p.ident()
		if !ok {
			return nil, p.errorf("positional arguments are not allowed")
		}
		p.skipSpace()
		if p.peek() != '=' || strings.HasPrefix(p.src[p.pos:], "==") {
			return nil, p.errorf("expected '=' after argument %s", key)
		}
		p.pos++
		v, err := p.value()
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", key, err)
		}
		c.Args = append(c.Args, tool.Arg{Name: key, Value: plain(v)})
		if p.consume(',') {
			continue
		}
		if p.consume(')') {
			return c, nil
		}
		return nil, p.errorf("expected ',' or ')' after argument %s", key)
	}
}

// parseLiteral 解析完整输入为单个字面量
func parseLiteral(src string) (any, error) {
	p := &literalParser{src: src}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing input %q", p.src[p.pos:])
	}
	return v, nil
}

func isLiteralName(s string) bool {
	switch s {
	case "True", "False", "None", "true", "false", "null":
		return true
	}
	return false
}

func (p *literalParser) value() (any, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case p.eof():
		return nil, p.errorf("unexpected end of input")
	case c == '"' || c == '\'':
		return p.stringLit()
	case c == '[':
		p.pos++
		items, _, err := p.sequence(']')
		return items, err
	case c == '(':
		p.pos++
		items, comma, err := p.sequence(')')
		if err != nil {
			return nil, err
		}
		if len(items) == 1 && !comma {
			return items[0], nil
		}
		return items, nil
	case c == '{':
		p.pos++
		return p.mapping()
	case c == '-' || c == '+':
		p.pos++
		p.skipSpace()
		if !isDigit(p.peek()) && p.peek() != '.' {
			return nil, p.errorf("unary %c is only allowed before a number", c)
		}
		n, err := p.number()
		if err != nil || c == '+' {
			return n, err
		}
		switch x := n.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		return n, nil
	case isDigit(c) || c == '.':
		return p.number()
	}

	start := p.pos
	name, ok := p.ident()
	if !ok {
		return nil, p.errorf("unexpected character %q", c)
	}
	if q := p.peek(); (q == '"' || q == '\'') && isStringPrefix(name) {
		p.pos = start
		return p.stringLit()
	}
	switch name {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	}
	p.skipSpace()
	switch p.peek() {
	case '(':
		return nil, p.errorf("call to %s is not a literal", name)
	case '.':
		return nil, p.errorf("attribute access on %s is not a literal", name)
	}
	return nil, p.errorf("name %s is not a literal", name)
}

func (p *literalParser) sequence(closer byte) ([]any, bool, error) {
	items := []any{}
	comma := false
	for {
		if p.consume(closer) {
			return items, comma, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, false, err
		}
		items = append(items, v)
		if p.consume(',') {
			comma = true
			continue
		}
		if p.consume(closer) {
			return items, comma, nil
		}
		return nil, false, p.errorf("expected ',' or '%c'", closer)
	}
}

func (p *literalParser) mapping() (orderedObject, error) {
	obj := orderedObject{}
	for {
		if p.consume('}') {
			return obj, nil
		}
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		var key string
		switch x := k.(type) {
		case string:
			key = x
		case int64, float64, bool:
			key = fmt.Sprint(x)
		default:
			return nil, p.errorf("unsupported mapping key %v", k)
		}
		if !p.consume(':') {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		obj = append(obj, tool.Arg{Name: key, Value: v})
		if p.consume(',') {
			continue
		}
		if p.consume('}') {
			return obj, nil
		}
		return nil, p.errorf("expected ',' or '}'")
	}
}

func isStringPrefix(s string) bool {
	switch strings.ToLower(s) {
	case "r", "u", "b", "br", "rb":
		return true
	}
	return false
}

// stringLit 读取一个或多个相邻的字符串字面量并拼接
func (p *literalParser) stringLit() (string, error) {
	var b strings.Builder
	for {
		s, err := p.str()
		if err != nil {
			return "", err
		}
		b.WriteString(s)
		save := p.pos
		p.skipSpace()
		if q := p.peek(); q == '"' || q == '\'' {
			continue
		}
		if name, ok := p.ident(); ok && isStringPrefix(name) {
			if q := p.peek(); q == '"' || q == '\'' {
				p.pos -= len(name)
				continue
			}
		}
		p.pos = save
		return b.String(), nil
	}
}

func (p *literalParser) str() (string, error) {
	raw := false
	for !p.eof() && strings.IndexByte("rRuUbB", p.src[p.pos]) >= 0 {
		if p.src[p.pos] == 'r' || p.src[p.pos] == 'R' {
			raw = true
		}
		p.pos++
	}
	q := p.peek()
	delim := string(q)
	if strings.HasPrefix(p.src[p.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	p.pos += len(delim)
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated string")
		}
		if strings.HasPrefix(p.src[p.pos:], delim) {
			p.pos += len(delim)
			return b.String(), nil
		}
		c := p.src[p.pos]
		if c != '\\' {
			b.WriteByte(c)
			p.pos++
			continue
		}
		if raw {
			b.WriteByte(c)
			p.pos++
			if !p.eof() {
				b.WriteByte(p.src[p.pos])
				p.pos++
			}
			continue
		}
		if err := p.escape(&b); err != nil {
			return "", err
		}
	}
}

func (p *literalParser) escape(b *strings.Builder) error {
	p.pos++
	if p.eof() {
		return p.errorf("unterminated string")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\n':
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case 'x':
		return p.hexRune(b, 2)
	case 'u':
		return p.hexRune(b, 4)
	case 'U':
		return p.hexRune(b, 8)
	default:
		if c >= '0' && c <= '7' {
			n := int(c - '0')
			for i := 0; i < 2 && p.peek() >= '0' && p.peek() <= '7'; i++ {
				n = n*8 + int(p.src[p.pos]-'0')
				p.pos++
			}
			b.WriteRune(rune(n))
			return nil
		}
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *literalParser) hexRune(b *strings.Builder, n int) error {
	if p.pos+n > len(p.src) {
		return p.errorf("truncated escape sequence")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil {
		return p.errorf("invalid escape sequence %q", p.src[p.pos:p.pos+n])
	}
	p.pos += n
	b.WriteRune(rune(v))
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool {
	return isDigit(c) || c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z')
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	rest := strings.ToLower(p.src[p.pos:])
	if strings.HasPrefix(rest, "0x") || strings.HasPrefix(rest, "0o") || strings.HasPrefix(rest, "0b") {
		p.pos += 2
		for !p.eof() && isAlnum(p.src[p.pos]) {
			p.pos++
		}
		v, err := strconv.ParseInt(p.src[start:p.pos], 0, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", p.src[start:p.pos])
		}
		return v, nil
	}

	isFloat := false
	digits := func() {
		for !p.eof() && (isDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
			p.pos++
		}
	}
	digits()
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		digits()
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		digits()
	}
	text := p.src[start:p.pos]
	if !p.eof() && isAlnum(p.src[p.pos]) {
		return nil, p.errorf("invalid number %q", text+string(p.src[p.pos]))
	}
	clean := strings.ReplaceAll(text, "_", "")
	if !isFloat {
		if v, err := strconv.ParseInt(clean, 10, 64); err == nil {
			return v, nil
		}
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return f, nil
}
