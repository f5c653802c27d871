// Copyright 2026 RenderFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 RenderFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和数据工厂。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足
  - 断言工具: AssertJSONEqual / AssertContains
  - 数据工厂: Requests / RequestsOfTypes / Request，构造带可控单价与
    优先级的生成请求样例

# 使用示例

	ctx := testutil.TestContext(t)
	reqs := testutil.Requests(4, types.AssetCard, types.AmountFromDollars(0.04))
	batches := composer.Compose(reqs)
*/
package testutil
