// Package tlsutil 提供集中式 TLS 配置，为出站 HTTP 客户端提供安全
// 加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。图像渲染客户端带着
// API Key 访问运营者配置的任意 base URL，传输层在这里统一收紧。
package tlsutil
