// 版权所有 2026 RenderFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 render 提供图像渲染服务的统一客户端。

# 概述

渲染是唯一真正花钱的环节：每次成功外呼都会在远端计费。本包把
不同服务收敛到一个 Renderer 接口，单次调用渲染一张图；上层工作器
在调用前预留预算、按结果提交或释放，因此实现必须保证"失败即未
计费"的语义（请求未发出或服务端明确拒绝）。

# 核心接口

  - Renderer：Render(ctx, req) 渲染一张图并返回产物。
  - OpenAIRenderer：DALL-E / gpt-image 系列的 HTTP 客户端。
  - RetryingRenderer：指数退避重试装饰器，只重试可重试错误，
    重试发生在同一笔预留之内，不会重复占用预算。
  - StubRenderer：可编排的内存实现，测试与演练（dry-run）使用。
  - CostCalculator：按模型 / 质量 / 尺寸计算单价，供请求编译与
    单价本使用。

# 使用方式

	renderer := render.NewOpenAIRenderer(render.OpenAIConfig{APIKey: key})
	renderer = render.NewRetryingRenderer(renderer, nil, logger)

	artifact, err := renderer.Render(ctx, &render.Request{
	    Prompt:    "a serene mountain lake at golden hour",
	    AssetType: types.AssetCover,
	    RefID:     "req-001",
	})
*/
package render
