package fetcher

import (
	"context"
	"fmt"
	"net"
	"time"

	utls "github.com/refraction-networking/utls"
)

// chromeH1Spec Chrome指纹的ClientHello, ALPN限定为http/1.1
// http.Transport 在自定义TLS连接上只能说HTTP/1.1
var chromeH1Spec *utls.ClientHelloSpec

func init() {
	spec, err := utls.UTLSIdToSpec(utls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = &spec
}

type dialTLSFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// dialChromeTLS 使用utls模拟Chrome握手
func dialChromeTLS(insecure bool) dialTLSFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: 10 * time.Second}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, _ := net.SplitHostPort(addr)
		cfg := &utls.Config{ServerName: host, InsecureSkipVerify: insecure}

		var tlsConn *utls.UConn
		if chromeH1Spec != nil {
			tlsConn = utls.UClient(conn, cfg, utls.HelloCustom)
			if err := tlsConn.ApplyPreset(chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("应用TLS指纹失败: %w", err)
			}
		} else {
			tlsConn = utls.UClient(conn, cfg, utls.HelloChrome_Auto)
		}

		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
}
