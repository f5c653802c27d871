// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供运行期间抓取端点的生命周期管理，支持非阻塞启动、
优雅关闭与异步错误传播。

# 概述

长时间的生成运行（数百张图配合限速可达数小时）期间，进程通过本包
暴露 /metrics 等抓取端点供 Prometheus 采集。Manager 封装
net/http.Server，统一管理监听、服务与关闭流程；端点的路由组装
归命令层，信号处理归调用方。

# 核心类型

  - Manager：抓取端点服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Shutdown 生命周期方法。
  - Config：服务器配置，包含监听地址、读写超时与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务，运行主流程
    不受影响。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空，可重复调用。
  - 错误传播：Errors() 返回异步错误通道，供调用方监控服务异常。
  - 地址查询：Addr 返回实际监听地址，配置 ":0" 时返回真实端口。
*/
package server
